package domain

import "testing"

func TestParseRiskMode(t *testing.T) {
	for _, s := range []string{"NORMAL", "HALF", "MIN"} {
		mode, err := ParseRiskMode(s)
		if err != nil {
			t.Errorf("ParseRiskMode(%q) returned error: %v", s, err)
		}
		if string(mode) != s {
			t.Errorf("ParseRiskMode(%q) = %q", s, mode)
		}
	}

	if _, err := ParseRiskMode("half"); err == nil {
		t.Error("ParseRiskMode accepted lowercase mode")
	}
	if _, err := ParseRiskMode(""); err == nil {
		t.Error("ParseRiskMode accepted empty string")
	}
}

func TestParseThesisStatus(t *testing.T) {
	for _, s := range []string{"ACTIVE", "WATCH", "BROKEN"} {
		status, err := ParseThesisStatus(s)
		if err != nil {
			t.Errorf("ParseThesisStatus(%q) returned error: %v", s, err)
		}
		if string(status) != s {
			t.Errorf("ParseThesisStatus(%q) = %q", s, status)
		}
	}

	if _, err := ParseThesisStatus("RETIRED"); err == nil {
		t.Error("ParseThesisStatus accepted unknown status")
	}
}

func TestAccountKey(t *testing.T) {
	acc := AccountData{Broker: "Schwab", AccountID: "12345678"}
	if got, want := acc.Key(), "Schwab:12345678"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestRiskResultBreaches(t *testing.T) {
	r := RiskResult{
		ThesisResults: []ThesisResult{
			{Name: "OVER", Utilization: 1.5},
			{Name: "AT", Utilization: 1.0},
			{Name: "UNDER", Utilization: 0.4},
		},
	}

	breaches := r.Breaches()
	if len(breaches) != 1 {
		t.Fatalf("len(Breaches()) = %d, want 1", len(breaches))
	}
	if breaches[0].Name != "OVER" {
		t.Errorf("Breaches()[0].Name = %q, want %q", breaches[0].Name, "OVER")
	}
}
