// Package risk implements the drawdown-to-mode classifier, the
// symbol-to-thesis mapping resolver, the per-thesis budget evaluation, and
// the engine that orchestrates one computation pass over collected account
// data.
package risk

import (
	"log/slog"
	"regexp"

	"nrg/internal/config"
	"nrg/internal/domain"
)

// rule is one compiled mapping entry. re is nil when the pattern failed to
// compile as a regular expression; exact matching still applies to such
// rules.
type rule struct {
	pattern string
	re      *regexp.Regexp
	thesis  string
	weight  float64
}

// Resolver maps ticker symbols to thesis identifiers using an ordered rule
// table. Rule order is significant: the first matching rule wins.
type Resolver struct {
	rules []rule
}

// NewResolver compiles the configured mapping rules. Each pattern is tried
// as a case-insensitive regex anchored at both ends; patterns that fail to
// compile are logged once here and participate in exact matching only.
func NewResolver(mappings []config.Mapping, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	rules := make([]rule, 0, len(mappings))
	for _, m := range mappings {
		w := m.Weight
		if w == 0 {
			w = 1.0
		}
		r := rule{pattern: m.Pattern, thesis: m.Thesis, weight: w}
		if r.thesis == "" {
			r.thesis = domain.ThesisUnmapped
		}
		re, err := regexp.Compile("(?i)^" + m.Pattern + "$")
		if err != nil {
			log.Warn("mapping pattern does not compile as regex, exact match only",
				"pattern", m.Pattern, "error", err)
		} else {
			r.re = re
		}
		rules = append(rules, r)
	}
	return &Resolver{rules: rules}
}

// Resolve returns the thesis id and weight for a symbol. Rules are tried in
// configured order: exact string match first, then the anchored regex. When
// no rule matches the unmapped sentinel is returned with weight 1.0.
func (r *Resolver) Resolve(symbol string) (string, float64) {
	for i := range r.rules {
		ru := &r.rules[i]
		if ru.pattern == symbol {
			return ru.thesis, ru.weight
		}
		if ru.re != nil && ru.re.MatchString(symbol) {
			return ru.thesis, ru.weight
		}
	}
	return domain.ThesisUnmapped, 1.0
}
