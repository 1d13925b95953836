package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"nrg/internal/config"
	"nrg/internal/domain"
)

func TestNotifyWebhook(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("unmarshal webhook payload: %v", err)
		}
	}))
	defer srv.Close()

	n := NewNotifier(config.Notifications{Enabled: true, WebhookURL: srv.URL})
	n.Notify("Test Alert", "something happened")

	if got == nil {
		t.Fatal("webhook was not called")
	}
	want := "*Test Alert*\n```something happened```"
	if got["text"] != want {
		t.Errorf("payload text = %q, want %q", got["text"], want)
	}
}

func TestNotifyDisabledSendsNothing(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	n := NewNotifier(config.Notifications{Enabled: false, WebhookURL: srv.URL})
	n.Notify("Test Alert", "body")

	if called {
		t.Error("disabled notifier called the webhook")
	}
}

func TestNotifyEmail(t *testing.T) {
	n := NewNotifier(config.Notifications{
		Enabled: true,
		Email: config.Email{
			SMTPServer: "smtp.example.com",
			SMTPPort:   587,
			Username:   "nrg@example.com",
			Password:   "secret",
			To:         "ops@example.com",
		},
	})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	n.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	n.Notify("Mode Change", "details here")

	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if gotFrom != "nrg@example.com" || len(gotTo) != 1 || gotTo[0] != "ops@example.com" {
		t.Errorf("from/to = %q/%v", gotFrom, gotTo)
	}
	msg := string(gotMsg)
	if !strings.Contains(msg, "Subject: [NRG] Mode Change\r\n") {
		t.Errorf("message missing subject header:\n%s", msg)
	}
	if !strings.Contains(msg, "details here") {
		t.Errorf("message missing body:\n%s", msg)
	}
}

func TestNotifyModeChange(t *testing.T) {
	var sent []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		sent = append(sent, string(body))
	}))
	defer srv.Close()

	n := NewNotifier(config.Notifications{Enabled: true, WebhookURL: srv.URL})

	n.NotifyModeChange(&domain.RiskResult{ModeChanged: false, Mode: domain.ModeNormal})
	if len(sent) != 0 {
		t.Fatal("notification sent without a mode change")
	}

	n.NotifyModeChange(&domain.RiskResult{
		ModeChanged: true,
		OldMode:     domain.ModeNormal,
		Mode:        domain.ModeHalf,
		RiskScale:   0.5,
		Equity:      85000,
		Peak:        100000,
		Drawdown:    -0.15,
	})
	if len(sent) != 1 {
		t.Fatalf("notifications sent = %d, want 1", len(sent))
	}
	for _, want := range []string{"NORMAL -> HALF", "Risk Scale: 50%", "Drawdown: -15.00%"} {
		if !strings.Contains(sent[0], want) {
			t.Errorf("notification missing %q:\n%s", want, sent[0])
		}
	}
}

func TestNotifyUtilizationBreach(t *testing.T) {
	var sent []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		sent = append(sent, string(body))
	}))
	defer srv.Close()

	n := NewNotifier(config.Notifications{Enabled: true, WebhookURL: srv.URL})

	n.NotifyUtilizationBreach(&domain.RiskResult{
		ThesisResults: []domain.ThesisResult{
			{Name: "AI_INFRA", Utilization: 1.5, Action: "REDUCE $16,667", ReduceAmount: 16667},
			{Name: "DEFENSE", Utilization: 0.4},
		},
	})
	if len(sent) != 1 {
		t.Fatalf("notifications sent = %d, want 1", len(sent))
	}
	for _, want := range []string{"Utilization Breach: 1 thesis(es)", "AI_INFRA: 150% utilization", "REDUCE $16,667"} {
		if !strings.Contains(sent[0], want) {
			t.Errorf("notification missing %q:\n%s", want, sent[0])
		}
	}

	sent = nil
	n.NotifyUtilizationBreach(&domain.RiskResult{
		ThesisResults: []domain.ThesisResult{{Name: "DEFENSE", Utilization: 0.4}},
	})
	if len(sent) != 0 {
		t.Error("notification sent with no breaches")
	}
}

func TestSendDailySummaryGated(t *testing.T) {
	var sent int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sent++
	}))
	defer srv.Close()

	result := &domain.RiskResult{Mode: domain.ModeNormal}

	n := NewNotifier(config.Notifications{Enabled: true, WebhookURL: srv.URL})
	n.SendDailySummary(result, "summary text")
	if sent != 0 {
		t.Error("summary sent with daily_summary disabled")
	}

	n = NewNotifier(config.Notifications{Enabled: true, DailySummary: true, WebhookURL: srv.URL})
	n.SendDailySummary(result, "summary text")
	if sent != 1 {
		t.Errorf("summaries sent = %d, want 1", sent)
	}
}
