// Package config loads and saves TOML configuration, following the
// teacher's BurntSushi/toml + XDG-path layout, extended with every option
// spec.md §6 recognizes.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration.
type Config struct {
	General GeneralConfig `toml:"general"`
	Logging LoggingConfig `toml:"logging"`
	Storage StorageConfig `toml:"storage"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	DataDir     string `toml:"data_dir"`
	AutoConnect bool   `toml:"auto_connect"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level        string `toml:"level"`
	File         string `toml:"file"`
	Console      bool   `toml:"console"`
	TraceLogLevel int   `toml:"tracelog_level"` // verbosity for transport/parser/auth debug logs
}

// StorageConfig contains storage settings (unread-jids index, caps cache).
type StorageConfig struct {
	VacuumOnStartup bool `toml:"vacuum_on_startup"`
}

// Account represents one XMPP account configuration, carrying every option
// spec.md §6 "Configuration options (recognized)" names.
type Account struct {
	// Identity and endpoint.
	JID      string `toml:"jid"`
	Password string `toml:"password"`
	Resource string `toml:"resource"`
	Server   string `toml:"server"`
	Port     int    `toml:"port"`

	// TLS.
	SSL             bool   `toml:"ssl"`               // direct TLS (XEP-0368)
	TLS             bool   `toml:"tls"`               // STARTTLS
	SSLFingerprint  string `toml:"ssl_fingerprint"`   // hex-colon pinned cert digest
	SSLIgnoreChecks bool   `toml:"ssl_ignore_checks"` // strict vs ignore_all cert policy
	SSLCiphers      string `toml:"ssl_ciphers"`
	SSLCA           string `toml:"ssl_ca"`

	// HTTP CONNECT proxy.
	ProxyHost string `toml:"proxy_host"`
	ProxyPort int    `toml:"proxy_port"`
	ProxyUser string `toml:"proxy_user"`
	ProxyPass string `toml:"proxy_pass"`

	// Keep-alive.
	PingInterval int `toml:"pinginterval"` // seconds, default 40

	// Presence priority per status class.
	Priority     int `toml:"priority"`
	PriorityAway int `toml:"priority_away"`

	// Feature toggles.
	DisableChatStates        bool `toml:"disable_chatstates"`
	DisableRandomResource    bool `toml:"disable_random_resource"`
	IQLastDisable            bool `toml:"iq_last_disable"`
	IQLastDisableWhenNotAvail bool `toml:"iq_last_disable_when_notavail"`
	Carbons                  bool `toml:"carbons"`
	BlockUnsubscribed        bool `toml:"block_unsubscribed"`
	DeleteOnReject           bool `toml:"delete_on_reject"`
	IgnoreSelfPresence       bool `toml:"ignore_self_presence"`

	AutoConnect bool `toml:"auto_connect"`
	UseKeyring  bool `toml:"use_keyring"`

	Session bool `toml:"-"` // session-only account, not saved to disk
}

// AccountsConfig contains all account configurations.
type AccountsConfig struct {
	Accounts []Account `toml:"accounts"`
}

// Paths holds the XDG-compliant paths for the application.
type Paths struct {
	ConfigDir string
	DataDir   string
	CacheDir  string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			DataDir:     "",
			AutoConnect: true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			File:    "",
			Console: false,
		},
		Storage: StorageConfig{
			VacuumOnStartup: false,
		},
	}
}

// DefaultAccount returns an Account with spec.md §6's documented defaults
// applied.
func DefaultAccount() Account {
	return Account{
		Port:         5222,
		Resource:     "rosterd",
		PingInterval: 40,
	}
}

// GetPaths returns XDG-compliant paths for the application.
func GetPaths() (*Paths, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	configDir = filepath.Join(configDir, "rosterd")

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	dataDir = filepath.Join(dataDir, "rosterd")

	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	cacheDir = filepath.Join(cacheDir, "rosterd")

	return &Paths{ConfigDir: configDir, DataDir: dataDir, CacheDir: cacheDir}, nil
}

// EnsureDirectories creates the necessary directories.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.ConfigDir, p.DataDir, p.CacheDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Load loads the configuration from the config file.
func Load() (*Config, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	configPath := filepath.Join(paths.ConfigDir, "config.toml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg.General.DataDir = paths.DataDir
		cfg.Logging.File = filepath.Join(paths.DataDir, "rosterd.log")
		return cfg, nil
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.General.DataDir == "" {
		cfg.General.DataDir = paths.DataDir
	} else {
		cfg.General.DataDir = expandPath(cfg.General.DataDir)
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.General.DataDir, "rosterd.log")
	} else {
		cfg.Logging.File = expandPath(cfg.Logging.File)
	}

	return cfg, nil
}

// LoadAccounts loads account configurations, applying defaults to any
// field the file left zero-valued.
func LoadAccounts() (*AccountsConfig, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, err
	}

	accountsPath := filepath.Join(paths.ConfigDir, "accounts.toml")

	if _, err := os.Stat(accountsPath); os.IsNotExist(err) {
		return &AccountsConfig{Accounts: []Account{}}, nil
	}

	var accounts AccountsConfig
	if _, err := toml.DecodeFile(accountsPath, &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}

	for i := range accounts.Accounts {
		a := &accounts.Accounts[i]
		if a.Port == 0 {
			a.Port = 5222
		}
		if a.Resource == "" {
			a.Resource = "rosterd"
		}
		if a.PingInterval == 0 {
			a.PingInterval = 40
		}
	}

	return &accounts, nil
}

// Save saves the configuration to the config file.
func Save(cfg *Config) error {
	paths, err := GetPaths()
	if err != nil {
		return err
	}

	configPath := filepath.Join(paths.ConfigDir, "config.toml")
	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// SaveAccounts saves account configurations.
func SaveAccounts(accounts *AccountsConfig) error {
	paths, err := GetPaths()
	if err != nil {
		return err
	}

	accountsPath := filepath.Join(paths.ConfigDir, "accounts.toml")
	f, err := os.Create(accountsPath)
	if err != nil {
		return fmt.Errorf("failed to create accounts file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(accounts); err != nil {
		return fmt.Errorf("failed to encode accounts: %w", err)
	}
	return nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
