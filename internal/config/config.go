package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"nrg/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the nrg risk guard.
type Config struct {
	Storage       Storage       `yaml:"storage"`
	Logging       Logging       `yaml:"logging"`
	Account       Account       `yaml:"account"`
	Theses        []Thesis      `yaml:"theses"`
	Mappings      []Mapping     `yaml:"mappings"`
	Connectors    Connectors    `yaml:"connectors"`
	Notifications Notifications `yaml:"notifications"`
	Publish       Publish       `yaml:"publish"`
	Server        Server        `yaml:"server"`
	Schedule      string        `yaml:"schedule"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Account holds the drawdown thresholds and per-mode risk scaling.
type Account struct {
	DrawdownX float64            `yaml:"drawdown_x"`
	RiskScale map[string]float64 `yaml:"risk_scale"`
}

// Thesis is the raw YAML form of one thesis configuration. StressPct and
// BudgetPct are pointers so an omitted value (use the default) can be told
// apart from an explicit zero (a validation error for stress_pct).
type Thesis struct {
	Name          string   `yaml:"name"`
	StressPct     *float64 `yaml:"stress_pct"`
	BudgetPct     *float64 `yaml:"budget_pct"`
	Status        string   `yaml:"status"`
	Falsifier     string   `yaml:"falsifier"`
	TimeWindowEnd string   `yaml:"time_window_end"`
}

// Mapping is one ordered symbol-to-thesis mapping rule. Pattern is tried as
// an exact match first, then as an anchored case-insensitive regex.
type Mapping struct {
	Pattern string  `yaml:"pattern"`
	Thesis  string  `yaml:"thesis"`
	Weight  float64 `yaml:"weight"`
}

// Connectors holds per-broker ingestion settings.
type Connectors struct {
	Schwab   Schwab   `yaml:"schwab"`
	Fidelity Fidelity `yaml:"fidelity"`
	Alpaca   Alpaca   `yaml:"alpaca"`
}

// Schwab holds OAuth credentials and endpoints for the Schwab trader API.
type Schwab struct {
	Enabled      bool   `yaml:"enabled"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	BaseURL      string `yaml:"base_url"`
	TokenFile    string `yaml:"token_file"`
}

// Fidelity configures the exported-CSV connector.
type Fidelity struct {
	Enabled bool   `yaml:"enabled"`
	CSVDir  string `yaml:"csv_dir"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	Enabled   bool   `yaml:"enabled"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// Notifications configures alert delivery channels.
type Notifications struct {
	Enabled      bool   `yaml:"enabled"`
	DailySummary bool   `yaml:"daily_summary"`
	Email        Email  `yaml:"email"`
	WebhookURL   string `yaml:"webhook_url"`
}

// Email holds SMTP settings for email alerts.
type Email struct {
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	To         string `yaml:"to"`
}

// Publish configures the dashboard CSV publisher.
type Publish struct {
	Dir string `yaml:"dir"`
}

// Server holds the history API listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default fractions applied when a thesis omits its risk parameters.
const (
	DefaultStressPct = 0.25
	DefaultBudgetPct = 0.02
	DefaultDrawdownX = 0.12
)

// DefaultRiskScale returns the budget multiplier applied in each mode when
// the config does not override it.
func DefaultRiskScale() map[string]float64 {
	return map[string]float64{
		string(domain.ModeNormal): 1.0,
		string(domain.ModeHalf):   0.5,
		string(domain.ModeMin):    0.2,
	}
}

// Default returns a Config populated with documented defaults. It is the
// fallback when the config file is missing or unparseable.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/nrg.db",
		},
		Logging: Logging{Level: "info", Format: "json"},
		Account: Account{
			DrawdownX: DefaultDrawdownX,
			RiskScale: DefaultRiskScale(),
		},
		Connectors: Connectors{
			Schwab: Schwab{
				BaseURL:   "https://api.schwabapi.com",
				TokenFile: "data/.schwab_token.json",
			},
			Fidelity: Fidelity{CSVDir: "data/fidelity"},
			Alpaca:   Alpaca{BaseURL: "https://paper-api.alpaca.markets"},
		},
		Notifications: Notifications{
			Email: Email{SMTPServer: "smtp.gmail.com", SMTPPort: 587},
		},
		Publish: Publish{Dir: "data/dashboard"},
		Server:  Server{Host: "127.0.0.1", Port: 8080},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, merges it over
// the defaults, applies environment variable overrides, and validates the
// result. A missing or unparseable file degrades to defaults with a warning;
// only genuinely unusable values (a thesis with stress_pct explicitly zero)
// fail the load.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("could not read config, using defaults", "path", path, "error", err)
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("could not parse config, using defaults", "path", path, "error", err)
		cfg = Default()
	}

	applyEnvOverrides(cfg)
	fillMissing(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// fillMissing restores defaults for fields the file zeroed or omitted.
func fillMissing(cfg *Config) {
	def := Default()
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = def.Storage.DataDir
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = def.Storage.SQLitePath
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Account.DrawdownX <= 0 {
		slog.Warn("drawdown_x missing or invalid, using default",
			"default", DefaultDrawdownX)
		cfg.Account.DrawdownX = DefaultDrawdownX
	}
	if len(cfg.Account.RiskScale) == 0 {
		cfg.Account.RiskScale = DefaultRiskScale()
	}
	if cfg.Connectors.Schwab.BaseURL == "" {
		cfg.Connectors.Schwab.BaseURL = def.Connectors.Schwab.BaseURL
	}
	if cfg.Connectors.Schwab.TokenFile == "" {
		cfg.Connectors.Schwab.TokenFile = def.Connectors.Schwab.TokenFile
	}
	if cfg.Connectors.Fidelity.CSVDir == "" {
		cfg.Connectors.Fidelity.CSVDir = def.Connectors.Fidelity.CSVDir
	}
	if cfg.Connectors.Alpaca.BaseURL == "" {
		cfg.Connectors.Alpaca.BaseURL = def.Connectors.Alpaca.BaseURL
	}
	if cfg.Notifications.Email.SMTPServer == "" {
		cfg.Notifications.Email.SMTPServer = def.Notifications.Email.SMTPServer
	}
	if cfg.Notifications.Email.SMTPPort == 0 {
		cfg.Notifications.Email.SMTPPort = def.Notifications.Email.SMTPPort
	}
	if cfg.Publish.Dir == "" {
		cfg.Publish.Dir = def.Publish.Dir
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
}

// validate rejects configuration that would make the computation undefined.
// A thesis with stress_pct explicitly zero would divide by zero in the
// reduce-target computation, so it fails here instead of producing Inf/NaN
// at run time.
func validate(cfg *Config) error {
	for _, t := range cfg.Theses {
		if t.Name == "" {
			return fmt.Errorf("config: thesis with empty name")
		}
		if t.StressPct != nil && *t.StressPct <= 0 {
			return fmt.Errorf("config: thesis %q has stress_pct %v; must be > 0",
				t.Name, *t.StressPct)
		}
		if t.BudgetPct != nil && *t.BudgetPct < 0 {
			return fmt.Errorf("config: thesis %q has negative budget_pct %v",
				t.Name, *t.BudgetPct)
		}
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("SCHWAB_CLIENT_ID"); v != "" {
		cfg.Connectors.Schwab.ClientID = v
	}
	if v := os.Getenv("SCHWAB_CLIENT_SECRET"); v != "" {
		cfg.Connectors.Schwab.ClientSecret = v
	}
	if v := os.Getenv("SCHWAB_REFRESH_TOKEN"); v != "" {
		cfg.Connectors.Schwab.RefreshToken = v
	}
	if v := os.Getenv("SCHWAB_TOKEN_FILE"); v != "" {
		cfg.Connectors.Schwab.TokenFile = v
	}

	if v := os.Getenv("FIDELITY_CSV_DIR"); v != "" {
		cfg.Connectors.Fidelity.CSVDir = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Connectors.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Connectors.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Connectors.Alpaca.BaseURL = v
	}

	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.Notifications.Email.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Notifications.Email.Password = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Notifications.WebhookURL = v
	}

	// Canonical Alpaca SDK env vars take priority over the ALPACA_* names.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Connectors.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Connectors.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Domain conversion
// ---------------------------------------------------------------------------

// ThesisConfigs converts the raw YAML thesis entries into domain configs,
// applying defaults for omitted fields. Invalid status strings degrade to
// ACTIVE with a warning.
func (c *Config) ThesisConfigs() []domain.ThesisConfig {
	out := make([]domain.ThesisConfig, 0, len(c.Theses))
	for _, t := range c.Theses {
		tc := domain.ThesisConfig{
			Name:          t.Name,
			StressPct:     DefaultStressPct,
			BudgetPct:     DefaultBudgetPct,
			Status:        domain.ThesisActive,
			Falsifier:     t.Falsifier,
			TimeWindowEnd: t.TimeWindowEnd,
		}
		if tc.Falsifier == "" {
			tc.Falsifier = "N/A"
		}
		if t.StressPct != nil {
			tc.StressPct = *t.StressPct
		}
		if t.BudgetPct != nil {
			tc.BudgetPct = *t.BudgetPct
		}
		if t.Status != "" {
			st, err := domain.ParseThesisStatus(t.Status)
			if err != nil {
				slog.Warn("invalid thesis status, defaulting to ACTIVE",
					"thesis", t.Name, "status", t.Status)
			} else {
				tc.Status = st
			}
		}
		out = append(out, tc)
	}
	return out
}
