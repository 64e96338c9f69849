package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/brandon/mailcore/pkg/types"
)

// Store drivers
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Credential backends
const (
	CredentialsStore   = "store"
	CredentialsKeyring = "keyring"
)

// Config holds the application configuration
type Config struct {
	// Storage settings
	StoreDriver string
	StorePath   string
	LogLevel    string

	// IMAP session settings
	ConnectTimeout  time.Duration
	IOTimeout       time.Duration
	SessionPoolSize int

	// Message list behaviour
	UseSort                            bool
	UseThreads                         bool
	UseBodyStructuresForHasAttachments bool
	TimezoneOffsetMinutes              int
	CredentialBackend                  string

	// Accounts seeded into the store at startup
	Accounts []AccountConfig
}

// AccountConfig holds configuration for a single email account
type AccountConfig struct {
	Name string

	// IMAP settings
	IMAPHost     string
	IMAPPort     int
	IMAPSecurity string
	IMAPUsername string
	IMAPPassword string

	// SMTP settings
	SMTPHost     string
	SMTPPort     int
	SMTPSecurity string
	SMTPUsername string
	SMTPPassword string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	return load(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("STORE_DRIVER", DriverSQLite)
	v.SetDefault("STORE_PATH", "/data/mailcore.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("IMAP_CONNECT_TIMEOUT", "10s")
	v.SetDefault("IMAP_IO_TIMEOUT", "60s")
	v.SetDefault("SESSION_POOL_SIZE", 64)
	v.SetDefault("USE_SORT", true)
	v.SetDefault("USE_THREADS", true)
	v.SetDefault("USE_BODY_STRUCTURES_FOR_HAS_ATTACHMENTS_SEARCH", false)
	v.SetDefault("TIMEZONE_OFFSET_MINUTES", 0)
	v.SetDefault("CREDENTIAL_BACKEND", CredentialsStore)
	return v
}

func load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		StoreDriver:                        strings.ToLower(v.GetString("STORE_DRIVER")),
		StorePath:                          v.GetString("STORE_PATH"),
		LogLevel:                           v.GetString("LOG_LEVEL"),
		ConnectTimeout:                     v.GetDuration("IMAP_CONNECT_TIMEOUT"),
		IOTimeout:                          v.GetDuration("IMAP_IO_TIMEOUT"),
		SessionPoolSize:                    v.GetInt("SESSION_POOL_SIZE"),
		UseSort:                            v.GetBool("USE_SORT"),
		UseThreads:                         v.GetBool("USE_THREADS"),
		UseBodyStructuresForHasAttachments: v.GetBool("USE_BODY_STRUCTURES_FOR_HAS_ATTACHMENTS_SEARCH"),
		TimezoneOffsetMinutes:              v.GetInt("TIMEZONE_OFFSET_MINUTES"),
		CredentialBackend:                  strings.ToLower(v.GetString("CREDENTIAL_BACKEND")),
	}

	accounts, err := loadAccounts(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	cfg.Accounts = accounts

	return cfg, nil
}

// loadAccounts loads email account configurations. Unlike the store-backed
// account records, these are optional: an installation may provision
// accounts through the store alone.
func loadAccounts(v *viper.Viper) ([]AccountConfig, error) {
	var accounts []AccountConfig

	// First, try single account configuration (for backward compatibility)
	if v.GetString("IMAP_HOST") != "" {
		account, err := loadAccount(v, "", "default")
		if err != nil {
			return nil, err
		}
		return append(accounts, *account), nil
	}

	// Load multiple accounts (ACCOUNT_1_*, ACCOUNT_2_*, etc.)
	for num := 1; ; num++ {
		prefix := fmt.Sprintf("ACCOUNT_%d_", num)
		name := v.GetString(prefix + "NAME")
		if name == "" {
			break
		}
		account, err := loadAccount(v, prefix, name)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", num, err)
		}
		accounts = append(accounts, *account)
	}

	return accounts, nil
}

// loadAccount reads one account's settings under prefix
func loadAccount(v *viper.Viper, prefix, defaultName string) (*AccountConfig, error) {
	get := func(key string) string { return v.GetString(prefix + key) }
	getInt := func(key string, def int) int {
		if !v.IsSet(prefix + key) {
			return def
		}
		return v.GetInt(prefix + key)
	}

	name := get("ACCOUNT_NAME")
	if prefix != "" || name == "" {
		name = defaultName
	}

	acc := &AccountConfig{
		Name:         name,
		IMAPHost:     get("IMAP_HOST"),
		IMAPPort:     getInt("IMAP_PORT", 993),
		IMAPSecurity: strings.ToLower(get("IMAP_SECURITY")),
		IMAPUsername: get("IMAP_USERNAME"),
		IMAPPassword: get("IMAP_PASSWORD"),
		SMTPHost:     get("SMTP_HOST"),
		SMTPPort:     getInt("SMTP_PORT", 587),
		SMTPSecurity: strings.ToLower(get("SMTP_SECURITY")),
		SMTPUsername: get("SMTP_USERNAME"),
		SMTPPassword: get("SMTP_PASSWORD"),
	}
	if acc.IMAPSecurity == "" {
		acc.IMAPSecurity = defaultSecurity(acc.IMAPPort, 993)
	}
	if acc.SMTPSecurity == "" {
		acc.SMTPSecurity = defaultSecurity(acc.SMTPPort, 465)
	}

	if acc.IMAPHost == "" || acc.SMTPHost == "" {
		return nil, fmt.Errorf("IMAP_HOST and SMTP_HOST are required")
	}
	if acc.IMAPUsername == "" {
		return nil, fmt.Errorf("IMAP_USERNAME is required")
	}
	if acc.SMTPUsername == "" {
		acc.SMTPUsername = acc.IMAPUsername
	}
	if acc.SMTPPassword == "" {
		acc.SMTPPassword = acc.IMAPPassword
	}

	return acc, nil
}

func defaultSecurity(port, implicitTLSPort int) string {
	if port == implicitTLSPort {
		return string(types.SecuritySSL)
	}
	return string(types.SecurityStartTLS)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
		if c.StorePath == "" {
			return fmt.Errorf("STORE_PATH is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.CredentialBackend {
	case CredentialsStore, CredentialsKeyring:
	default:
		return fmt.Errorf("unknown CREDENTIAL_BACKEND %q", c.CredentialBackend)
	}

	if c.SessionPoolSize < 1 {
		return fmt.Errorf("SESSION_POOL_SIZE must be at least 1")
	}
	if c.ConnectTimeout < 0 || c.IOTimeout < 0 {
		return fmt.Errorf("IMAP timeouts must not be negative")
	}

	// Validate each account
	for i := range c.Accounts {
		acc := &c.Accounts[i]
		if acc.IMAPPort < 1 || acc.IMAPPort > 65535 {
			return fmt.Errorf("account %s: invalid IMAP_PORT", acc.Name)
		}
		if acc.SMTPPort < 1 || acc.SMTPPort > 65535 {
			return fmt.Errorf("account %s: invalid SMTP_PORT", acc.Name)
		}
		if err := validSecurity(acc.IMAPSecurity); err != nil {
			return fmt.Errorf("account %s: IMAP_SECURITY: %w", acc.Name, err)
		}
		if err := validSecurity(acc.SMTPSecurity); err != nil {
			return fmt.Errorf("account %s: SMTP_SECURITY: %w", acc.Name, err)
		}
	}

	return nil
}

func validSecurity(s string) error {
	switch types.Security(s) {
	case types.SecurityNone, types.SecuritySSL, types.SecurityStartTLS:
		return nil
	}
	return fmt.Errorf("unknown security mode %q", s)
}

// Server converts the account settings to a server record.
func (a *AccountConfig) Server() *types.Server {
	return &types.Server{
		Name: a.Name,
		Incoming: types.Endpoint{
			Host:     a.IMAPHost,
			Port:     a.IMAPPort,
			Security: types.Security(a.IMAPSecurity),
		},
		Outgoing: types.Endpoint{
			Host:     a.SMTPHost,
			Port:     a.SMTPPort,
			Security: types.Security(a.SMTPSecurity),
		},
		SMTPAuth:  types.SMTPAuthPlain,
		AuthMode:  types.AuthModePassword,
		OwnerType: types.OwnerAccount,
	}
}

// Account converts the account settings to an account record.
func (a *AccountConfig) Account() *types.Account {
	email := a.IMAPUsername
	if !strings.Contains(email, "@") {
		email = a.Name
	}
	return &types.Account{
		Email:        email,
		Login:        a.IMAPUsername,
		Password:     a.IMAPPassword,
		UseThreading: true,
		UseSearch:    true,
		Properties:   types.Properties{},
	}
}

// GetAccountByName finds an account by name
func (c *Config) GetAccountByName(name string) (*AccountConfig, error) {
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("account not found: %s", name)
}

// AccountNames returns a list of all account names
func (c *Config) AccountNames() []string {
	names := make([]string, len(c.Accounts))
	for i := range c.Accounts {
		names[i] = c.Accounts[i].Name
	}
	return names
}
