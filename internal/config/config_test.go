package config

import (
	"os"
	"path/filepath"
	"testing"

	"nrg/internal/domain"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nrg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DATA_DIR", "SQLITE_PATH", "LOG_LEVEL",
		"SCHWAB_CLIENT_ID", "SCHWAB_CLIENT_SECRET", "SCHWAB_REFRESH_TOKEN", "SCHWAB_TOKEN_FILE",
		"FIDELITY_CSV_DIR",
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "ALPACA_BASE_URL",
		"APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
		"SMTP_USERNAME", "SMTP_PASSWORD", "SLACK_WEBHOOK_URL",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoadFull(t *testing.T) {
	clearEnvOverrides(t)

	path := writeTempConfig(t, `
storage:
  data_dir: "/tmp/nrg/data"
  sqlite_path: "/tmp/nrg/nrg.db"
logging:
  level: "debug"
  format: "json"
account:
  drawdown_x: 0.10
  risk_scale:
    NORMAL: 1.0
    HALF: 0.5
    MIN: 0.25
theses:
  - name: "AI_INFRA"
    stress_pct: 0.30
    budget_pct: 0.03
    status: "WATCH"
    falsifier: "capex cuts"
  - name: "DEFENSE"
mappings:
  - pattern: "NVDA"
    thesis: "AI_INFRA"
  - pattern: "L.*"
    thesis: "DEFENSE"
    weight: 0.5
connectors:
  fidelity:
    enabled: true
    csv_dir: "/tmp/nrg/fidelity"
server:
  host: "0.0.0.0"
  port: 9090
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/nrg/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/nrg/data")
	}
	if cfg.Storage.SQLitePath != "/tmp/nrg/nrg.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/nrg/nrg.db")
	}

	// -- Account --
	if cfg.Account.DrawdownX != 0.10 {
		t.Errorf("Account.DrawdownX = %v, want %v", cfg.Account.DrawdownX, 0.10)
	}
	if cfg.Account.RiskScale["MIN"] != 0.25 {
		t.Errorf("Account.RiskScale[MIN] = %v, want %v", cfg.Account.RiskScale["MIN"], 0.25)
	}

	// -- Theses --
	if len(cfg.Theses) != 2 {
		t.Fatalf("len(Theses) = %d, want 2", len(cfg.Theses))
	}
	if cfg.Theses[0].StressPct == nil || *cfg.Theses[0].StressPct != 0.30 {
		t.Errorf("Theses[0].StressPct = %v, want 0.30", cfg.Theses[0].StressPct)
	}
	if cfg.Theses[1].StressPct != nil {
		t.Errorf("Theses[1].StressPct = %v, want nil (omitted)", *cfg.Theses[1].StressPct)
	}

	// -- Mappings --
	if len(cfg.Mappings) != 2 {
		t.Fatalf("len(Mappings) = %d, want 2", len(cfg.Mappings))
	}
	if cfg.Mappings[1].Weight != 0.5 {
		t.Errorf("Mappings[1].Weight = %v, want 0.5", cfg.Mappings[1].Weight)
	}

	// -- Connectors --
	if !cfg.Connectors.Fidelity.Enabled {
		t.Error("Connectors.Fidelity.Enabled = false, want true")
	}
	if cfg.Connectors.Fidelity.CSVDir != "/tmp/nrg/fidelity" {
		t.Errorf("Connectors.Fidelity.CSVDir = %q, want %q",
			cfg.Connectors.Fidelity.CSVDir, "/tmp/nrg/fidelity")
	}

	// -- Server --
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnvOverrides(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load() returned error for missing file: %v", err)
	}

	if cfg.Storage.SQLitePath != "data/nrg.db" {
		t.Errorf("Storage.SQLitePath = %q, want default %q", cfg.Storage.SQLitePath, "data/nrg.db")
	}
	if cfg.Account.DrawdownX != DefaultDrawdownX {
		t.Errorf("Account.DrawdownX = %v, want default %v", cfg.Account.DrawdownX, DefaultDrawdownX)
	}
	if cfg.Account.RiskScale["NORMAL"] != 1.0 {
		t.Errorf("Account.RiskScale[NORMAL] = %v, want 1.0", cfg.Account.RiskScale["NORMAL"])
	}
}

func TestLoadUnparseableFileUsesDefaults(t *testing.T) {
	clearEnvOverrides(t)

	path := writeTempConfig(t, "{{{ not yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error for unparseable file: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default %q", cfg.Logging.Level, "info")
	}
}

func TestLoadRejectsZeroStressPct(t *testing.T) {
	clearEnvOverrides(t)

	path := writeTempConfig(t, `
theses:
  - name: "BAD"
    stress_pct: 0
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load() accepted a thesis with stress_pct 0")
	}
}

func TestLoadRejectsNegativeBudgetPct(t *testing.T) {
	clearEnvOverrides(t)

	path := writeTempConfig(t, `
theses:
  - name: "BAD"
    budget_pct: -0.01
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load() accepted a thesis with negative budget_pct")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnvOverrides(t)

	path := writeTempConfig(t, `
storage:
  data_dir: "/original/data"
connectors:
  fidelity:
    csv_dir: "/original/fidelity"
  alpaca:
    api_key: "yaml-key"
    api_secret: "yaml-secret"
`)

	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("FIDELITY_CSV_DIR", "/env/fidelity")
	t.Setenv("ALPACA_API_KEY", "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Connectors.Fidelity.CSVDir != "/env/fidelity" {
		t.Errorf("Fidelity.CSVDir = %q, want %q (env override)",
			cfg.Connectors.Fidelity.CSVDir, "/env/fidelity")
	}
	if cfg.Connectors.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Connectors.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Connectors.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)",
			cfg.Connectors.Alpaca.APISecret, "yaml-secret")
	}
}

func TestThesisConfigsDefaults(t *testing.T) {
	stress := 0.40
	cfg := &Config{
		Theses: []Thesis{
			{Name: "FULL", StressPct: &stress, Status: "BROKEN", Falsifier: "thesis dead"},
			{Name: "BARE"},
			{Name: "BADSTATUS", Status: "WEIRD"},
		},
	}

	theses := cfg.ThesisConfigs()
	if len(theses) != 3 {
		t.Fatalf("len(ThesisConfigs()) = %d, want 3", len(theses))
	}

	if theses[0].StressPct != 0.40 {
		t.Errorf("FULL.StressPct = %v, want 0.40", theses[0].StressPct)
	}
	if theses[0].Status != domain.ThesisBroken {
		t.Errorf("FULL.Status = %v, want BROKEN", theses[0].Status)
	}

	if theses[1].StressPct != DefaultStressPct {
		t.Errorf("BARE.StressPct = %v, want default %v", theses[1].StressPct, DefaultStressPct)
	}
	if theses[1].BudgetPct != DefaultBudgetPct {
		t.Errorf("BARE.BudgetPct = %v, want default %v", theses[1].BudgetPct, DefaultBudgetPct)
	}
	if theses[1].Status != domain.ThesisActive {
		t.Errorf("BARE.Status = %v, want ACTIVE", theses[1].Status)
	}
	if theses[1].Falsifier != "N/A" {
		t.Errorf("BARE.Falsifier = %q, want %q", theses[1].Falsifier, "N/A")
	}

	if theses[2].Status != domain.ThesisActive {
		t.Errorf("BADSTATUS.Status = %v, want ACTIVE fallback", theses[2].Status)
	}
}
