// Package notify delivers risk alerts over email and webhook channels.
// Delivery is best effort: failures are logged and never abort a run.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"nrg/internal/config"
	"nrg/internal/domain"
)

// Notifier sends alerts through every configured channel.
type Notifier struct {
	cfg    config.Notifications
	log    *slog.Logger
	client *http.Client

	// sendMail is swapped out in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewNotifier creates a Notifier from its configuration.
func NewNotifier(cfg config.Notifications) *Notifier {
	return &Notifier{
		cfg:      cfg,
		log:      slog.Default().With("component", "notifier"),
		client:   &http.Client{Timeout: 10 * time.Second},
		sendMail: smtp.SendMail,
	}
}

// Notify sends title and message through all configured channels. Disabled
// notifiers do nothing.
func (n *Notifier) Notify(title, message string) {
	if !n.cfg.Enabled {
		n.log.Debug("notifications disabled")
		return
	}
	if n.cfg.Email.Username != "" {
		n.sendEmail(title, message)
	}
	if n.cfg.WebhookURL != "" {
		n.sendWebhook(fmt.Sprintf("*%s*\n```%s```", title, message))
	}
}

func (n *Notifier) sendEmail(subject, body string) {
	e := n.cfg.Email
	if e.Username == "" || e.Password == "" || e.To == "" {
		n.log.Warn("email config incomplete, skipping")
		return
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", e.Username)
	fmt.Fprintf(&msg, "To: %s\r\n", e.To)
	fmt.Fprintf(&msg, "Subject: [NRG] %s\r\n", subject)
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", e.SMTPServer, e.SMTPPort)
	auth := smtp.PlainAuth("", e.Username, e.Password, e.SMTPServer)
	if err := n.sendMail(addr, auth, e.Username, []string{e.To}, msg.Bytes()); err != nil {
		n.log.Error("failed to send email", "error", err)
		return
	}
	n.log.Info("sent email notification", "subject", subject)
}

func (n *Notifier) sendWebhook(message string) {
	var payload bytes.Buffer
	enc := json.NewEncoder(&payload)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]string{"text": message}); err != nil {
		n.log.Error("failed to encode webhook payload", "error", err)
		return
	}

	resp, err := n.client.Post(n.cfg.WebhookURL, "application/json", &payload)
	if err != nil {
		n.log.Error("failed to send webhook notification", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		n.log.Error("webhook notification rejected", "status", resp.StatusCode)
		return
	}
	n.log.Info("sent webhook notification")
}

// NotifyModeChange sends an alert when the run changed the risk mode.
func (n *Notifier) NotifyModeChange(result *domain.RiskResult) {
	if !result.ModeChanged {
		return
	}

	title := fmt.Sprintf("Mode Change: %s -> %s", result.OldMode, result.Mode)
	message := fmt.Sprintf(`Risk Mode Change Alert

Previous Mode: %s
New Mode: %s
Risk Scale: %.0f%%

Account Status:
  Equity: $%.2f
  Peak: $%.2f
  Drawdown: %.2f%%

This change affects position sizing and thesis budgets.
`, result.OldMode, result.Mode, result.RiskScale*100,
		result.Equity, result.Peak, result.Drawdown*100)

	n.Notify(title, message)
}

// NotifyUtilizationBreach sends an alert listing every thesis whose
// utilization exceeds its budget.
func (n *Notifier) NotifyUtilizationBreach(result *domain.RiskResult) {
	breaches := result.Breaches()
	if len(breaches) == 0 {
		return
	}

	title := fmt.Sprintf("Utilization Breach: %d thesis(es)", len(breaches))
	var b strings.Builder
	b.WriteString("Thesis utilization exceeds budget:\n\n")
	for _, t := range breaches {
		fmt.Fprintf(&b, "  %s: %.0f%% utilization\n", t.Name, t.Utilization*100)
		fmt.Fprintf(&b, "    Action: %s\n", t.Action)
		fmt.Fprintf(&b, "    Reduce by: $%.0f\n\n", t.ReduceAmount)
	}

	n.Notify(title, b.String())
}

// NotifyDataFailure sends an alert when a broker's data ingestion failed.
func (n *Notifier) NotifyDataFailure(broker, errMsg string) {
	title := fmt.Sprintf("Data Ingestion Failed: %s", broker)
	message := fmt.Sprintf(`Broker data ingestion failed

Broker: %s
Error: %s

The risk run will continue with partial data (DEGRADED status).
Please check credentials and data sources.
`, broker, errMsg)

	n.Notify(title, message)
}

// SendDailySummary sends the formatted run summary when configured to.
func (n *Notifier) SendDailySummary(result *domain.RiskResult, summary string) {
	if !n.cfg.DailySummary {
		return
	}
	n.Notify(fmt.Sprintf("Daily Summary - %s", result.Mode), summary)
}
