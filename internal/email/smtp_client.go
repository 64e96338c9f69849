package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailcore/internal/credential"
	"github.com/brandon/mailcore/internal/mailerr"
	"github.com/brandon/mailcore/pkg/types"
)

// EmailMessage represents an email to be sent
type EmailMessage struct {
	From        types.Address
	To          []types.Address
	Cc          []types.Address
	Bcc         []types.Address
	Subject     string
	BodyText    string
	BodyHTML    string
	Attachments []Attachment
	ReplyTo     string
	InReplyTo   string
	References  string
	Date        time.Time
}

// Attachment represents an email attachment
type Attachment struct {
	Filename string
	Content  []byte
	MimeType string
}

// Recipients returns every envelope recipient, Bcc included.
func (msg *EmailMessage) Recipients() []string {
	var rcpts []string
	for _, list := range [][]types.Address{msg.To, msg.Cc, msg.Bcc} {
		for _, a := range list {
			if a.Email != "" {
				rcpts = append(rcpts, a.Email)
			}
		}
	}
	return rcpts
}

// Delivery is one SMTP transaction.
type Delivery struct {
	Endpoint   types.Endpoint
	Auth       types.SMTPAuth
	AuthMode   types.AuthMode
	Login      string
	Secret     credential.Secret
	From       string
	Recipients []string
	Message    []byte
}

// Sender delivers composed messages.
type Sender interface {
	Send(ctx context.Context, d *Delivery) error
}

// SMTPClient delivers mail with net/smtp
type SMTPClient struct {
	timeout time.Duration
	logger  *logrus.Logger
}

// NewSMTPClient creates a new SMTP client
func NewSMTPClient(timeout time.Duration, logger *logrus.Logger) *SMTPClient {
	return &SMTPClient{timeout: timeout, logger: logger}
}

// Send sends an email. Port security ssl dials TLS directly, starttls
// upgrades the plain connection.
func (c *SMTPClient) Send(ctx context.Context, d *Delivery) error {
	const op = "smtp send"
	ep := d.Endpoint
	addr := net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port))
	tlsConfig := &tls.Config{
		ServerName: ep.Host,
		MinVersion: tls.VersionTLS12,
	}
	dialer := &net.Dialer{Timeout: c.timeout}

	var (
		conn net.Conn
		err  error
	)
	if ep.Security == types.SecuritySSL {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return mailerr.Wrap(mailerr.KindConnection, op, fmt.Errorf("failed to connect to SMTP server: %w", err))
	}
	if c.timeout > 0 {
		conn.SetDeadline(time.Now().Add(c.timeout)) //nolint:errcheck
	}

	client, err := smtp.NewClient(conn, ep.Host)
	if err != nil {
		conn.Close()
		return mailerr.Wrap(mailerr.KindConnection, op, fmt.Errorf("failed to create SMTP client: %w", err))
	}
	defer client.Close()

	if ep.Security == types.SecurityStartTLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			return mailerr.Wrap(mailerr.KindConnection, op, fmt.Errorf("failed to start TLS: %w", err))
		}
	}

	if auth := smtpAuth(d); auth != nil {
		if err := client.Auth(auth); err != nil {
			return mailerr.Wrap(mailerr.KindAuthentication, op, fmt.Errorf("failed to authenticate: %w", err))
		}
	}

	if err := client.Mail(d.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, to := range d.Recipients {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", to, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to send data command: %w", err)
	}
	if _, err := w.Write(d.Message); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"addr":  addr,
		"count": len(d.Recipients),
	}).Debug("Message delivered")
	return client.Quit()
}

func smtpAuth(d *Delivery) smtp.Auth {
	if d.AuthMode == types.AuthModeOAuth2 && d.Secret.OAuthToken != "" {
		return &saslAuth{client: sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: d.Login,
			Token:    d.Secret.OAuthToken,
			Host:     d.Endpoint.Host,
			Port:     d.Endpoint.Port,
		})}
	}
	switch d.Auth {
	case types.SMTPAuthNone:
		return nil
	case types.SMTPAuthLogin:
		return &saslAuth{client: sasl.NewLoginClient(d.Login, d.Secret.Password)}
	default:
		if d.Secret.Password == "" {
			return nil
		}
		return smtp.PlainAuth("", d.Login, d.Secret.Password, d.Endpoint.Host)
	}
}

// saslAuth adapts a go-sasl client to net/smtp.
type saslAuth struct {
	client sasl.Client
}

func (a *saslAuth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	return a.client.Start()
}

func (a *saslAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	return a.client.Next(fromServer)
}

func mailAddrs(list []types.Address) []mail.Address {
	out := make([]mail.Address, 0, len(list))
	for _, a := range list {
		out = append(out, mail.Address{Name: a.Name, Address: a.Email})
	}
	return out
}

// createMessage creates an email message in MIME format and returns it
// with its Message-ID
func createMessage(msg *EmailMessage) ([]byte, string, error) {
	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}
	domain := "localhost"
	if i := strings.LastIndex(msg.From.Email, "@"); i >= 0 && i < len(msg.From.Email)-1 {
		domain = msg.From.Email[i+1:]
	}
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)

	b := enmime.Builder().
		From(msg.From.Name, msg.From.Email).
		Subject(msg.Subject).
		Date(date).
		Header("Message-ID", messageID)
	if len(msg.To) > 0 {
		b = b.ToAddrs(mailAddrs(msg.To))
	}
	if len(msg.Cc) > 0 {
		b = b.CCAddrs(mailAddrs(msg.Cc))
	}
	if len(msg.Bcc) > 0 {
		b = b.BCCAddrs(mailAddrs(msg.Bcc))
	}
	if msg.ReplyTo != "" {
		b = b.ReplyTo("", msg.ReplyTo)
	}
	if msg.InReplyTo != "" {
		b = b.Header("In-Reply-To", msg.InReplyTo)
	}
	if msg.References != "" {
		b = b.Header("References", msg.References)
	}
	if msg.BodyText != "" || msg.BodyHTML == "" {
		b = b.Text([]byte(msg.BodyText))
	}
	if msg.BodyHTML != "" {
		b = b.HTML([]byte(msg.BodyHTML))
	}
	for _, a := range msg.Attachments {
		mimeType := a.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		b = b.AddAttachment(a.Content, mimeType, a.Filename)
	}

	root, err := b.Build()
	if err != nil {
		return nil, "", fmt.Errorf("failed to build message: %w", err)
	}
	var buf bytes.Buffer
	if err := root.Encode(&buf); err != nil {
		return nil, "", fmt.Errorf("failed to encode message: %w", err)
	}
	return buf.Bytes(), messageID, nil
}
