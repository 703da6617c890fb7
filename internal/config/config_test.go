package config

import (
	"os"
	"path/filepath"
	"testing"
)

func withXDGHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	return dir
}

func TestGetPathsUsesXDGEnv(t *testing.T) {
	dir := withXDGHome(t)
	paths, err := GetPaths()
	if err != nil {
		t.Fatalf("GetPaths: %v", err)
	}
	if paths.ConfigDir != filepath.Join(dir, "config", "rosterd") {
		t.Fatalf("ConfigDir = %q", paths.ConfigDir)
	}
	if paths.DataDir != filepath.Join(dir, "data", "rosterd") {
		t.Fatalf("DataDir = %q", paths.DataDir)
	}
}

func TestLoadWithNoConfigFileReturnsDefaultsWithResolvedPaths(t *testing.T) {
	withXDGHome(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.DataDir == "" {
		t.Fatal("expected DataDir to be resolved to the XDG data dir")
	}
	if cfg.Logging.File == "" {
		t.Fatal("expected a default log file path")
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadExpandsTildeInDataDir(t *testing.T) {
	dir := withXDGHome(t)
	home := filepath.Join(dir, "home")
	if err := os.MkdirAll(home, 0700); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HOME", home)

	paths, err := GetPaths()
	if err != nil {
		t.Fatalf("GetPaths: %v", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	configPath := filepath.Join(paths.ConfigDir, "config.toml")
	if err := os.WriteFile(configPath, []byte(`[general]
data_dir = "~/roster-data"
`), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := filepath.Join(home, "roster-data")
	if cfg.General.DataDir != want {
		t.Fatalf("DataDir = %q, want %q", cfg.General.DataDir, want)
	}
}

func TestLoadAccountsWithNoFileReturnsEmptyList(t *testing.T) {
	withXDGHome(t)
	accounts, err := LoadAccounts()
	if err != nil {
		t.Fatalf("LoadAccounts: %v", err)
	}
	if len(accounts.Accounts) != 0 {
		t.Fatalf("expected no accounts, got %d", len(accounts.Accounts))
	}
}

func TestLoadAccountsAppliesDefaultsToZeroFields(t *testing.T) {
	dir := withXDGHome(t)
	paths, _ := GetPaths()
	if err := paths.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	accountsPath := filepath.Join(paths.ConfigDir, "accounts.toml")
	if err := os.WriteFile(accountsPath, []byte(`[[accounts]]
jid = "juliet@example.com"
password = "secret"
`), 0600); err != nil {
		t.Fatal(err)
	}
	_ = dir

	accounts, err := LoadAccounts()
	if err != nil {
		t.Fatalf("LoadAccounts: %v", err)
	}
	if len(accounts.Accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts.Accounts))
	}
	a := accounts.Accounts[0]
	if a.Port != 5222 {
		t.Fatalf("Port = %d, want default 5222", a.Port)
	}
	if a.Resource != "rosterd" {
		t.Fatalf("Resource = %q, want default rosterd", a.Resource)
	}
	if a.PingInterval != 40 {
		t.Fatalf("PingInterval = %d, want default 40", a.PingInterval)
	}
}

func TestLoadAccountsPreservesExplicitNonZeroValues(t *testing.T) {
	withXDGHome(t)
	paths, _ := GetPaths()
	if err := paths.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	accountsPath := filepath.Join(paths.ConfigDir, "accounts.toml")
	if err := os.WriteFile(accountsPath, []byte(`[[accounts]]
jid = "juliet@example.com"
port = 5223
resource = "balcony"
pinginterval = 60
`), 0600); err != nil {
		t.Fatal(err)
	}

	accounts, err := LoadAccounts()
	if err != nil {
		t.Fatalf("LoadAccounts: %v", err)
	}
	a := accounts.Accounts[0]
	if a.Port != 5223 || a.Resource != "balcony" || a.PingInterval != 60 {
		t.Fatalf("unexpected account: %+v", a)
	}
}

func TestSaveAccountsThenLoadAccountsRoundTrips(t *testing.T) {
	withXDGHome(t)
	paths, err := GetPaths()
	if err != nil {
		t.Fatal(err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	original := &AccountsConfig{Accounts: []Account{
		{JID: "juliet@example.com", Password: "secret", Port: 5222, Resource: "balcony"},
	}}
	if err := SaveAccounts(original); err != nil {
		t.Fatalf("SaveAccounts: %v", err)
	}

	loaded, err := LoadAccounts()
	if err != nil {
		t.Fatalf("LoadAccounts: %v", err)
	}
	if len(loaded.Accounts) != 1 || loaded.Accounts[0].JID != "juliet@example.com" {
		t.Fatalf("unexpected round-tripped accounts: %+v", loaded.Accounts)
	}
}

func TestDefaultAccountMatchesDocumentedDefaults(t *testing.T) {
	a := DefaultAccount()
	if a.Port != 5222 || a.Resource != "rosterd" || a.PingInterval != 40 {
		t.Fatalf("unexpected default account: %+v", a)
	}
}
