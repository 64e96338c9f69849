package types

import (
	"strings"
	"time"
)

// Security is the transport security of an endpoint.
type Security string

const (
	SecurityNone     Security = "none"
	SecuritySSL      Security = "ssl"
	SecurityStartTLS Security = "starttls"
)

// AuthMode selects how the IMAP session authenticates.
type AuthMode string

const (
	AuthModePassword AuthMode = "password"
	AuthModeOAuth2   AuthMode = "oauth2"
)

// SMTPAuth selects how outgoing mail authenticates.
type SMTPAuth string

const (
	SMTPAuthNone  SMTPAuth = "none"
	SMTPAuthPlain SMTPAuth = "plain"
	SMTPAuthLogin SMTPAuth = "login"
)

// OwnerType is the scope a server record belongs to.
type OwnerType string

const (
	OwnerAccount    OwnerType = "account"
	OwnerTenant     OwnerType = "tenant"
	OwnerSuperAdmin OwnerType = "superadmin"
)

// Endpoint is one host/port/security triple.
type Endpoint struct {
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Security Security `json:"security"`
}

// Server holds incoming and outgoing endpoint settings.
type Server struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Incoming     Endpoint  `json:"incoming"`
	Outgoing     Endpoint  `json:"outgoing"`
	SMTPAuth     SMTPAuth  `json:"smtp_auth"`
	AuthMode     AuthMode  `json:"auth_mode"`
	OwnerType    OwnerType `json:"owner_type"`
	TenantID     int64     `json:"tenant_id"`
	Domains      []string  `json:"domains"`
	UseThreading bool      `json:"use_threading"`
}

// MatchesDomain reports whether the server serves the given mail domain.
func (s *Server) MatchesDomain(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	for _, d := range s.Domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "*" || d == domain {
			return true
		}
	}
	return false
}

// Account is one mailbox owner and its credentials.
type Account struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Login        string     `json:"login"`
	Password     string     `json:"-"`
	OAuthToken   string     `json:"-"`
	ServerID     int64      `json:"server_id"`
	TenantID     int64      `json:"tenant_id"`
	FoldersOrder []string   `json:"folders_order"`
	UseThreading bool       `json:"use_threading"`
	UseSearch    bool       `json:"use_search"`
	Properties   Properties `json:"properties"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Domain returns the part of the email address after '@'.
func (a *Account) Domain() string {
	if i := strings.LastIndex(a.Email, "@"); i >= 0 {
		return a.Email[i+1:]
	}
	return ""
}

// IncomingLogin is the login used for IMAP, defaulting to the email address.
func (a *Account) IncomingLogin() string {
	if a.Login != "" {
		return a.Login
	}
	return a.Email
}
