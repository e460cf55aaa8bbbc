package notifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"guest-delivery/internal/observability/logging"
	"guest-delivery/internal/resilience/retry"
)

// SMTPConfig configures the mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// RatePerSecond throttles the relay; 0 disables throttling.
	RatePerSecond float64
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends plain-text mail through an SMTP relay with PLAIN auth.
type SMTPMailer struct {
	config   SMTPConfig
	send     sendMailFunc
	limiter  *RateLimiter
	now      func() time.Time
	retryCfg retry.Config
}

// NewSMTPMailer creates a mailer. Port defaults to 587.
func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	if config.Port == 0 {
		config.Port = 587
	}
	return &SMTPMailer{
		config:   config,
		send:     smtp.SendMail,
		limiter:  NewRateLimiter(config.RatePerSecond, 5),
		now:      time.Now,
		retryCfg: retry.ProviderConfig(),
	}
}

// Configured reports whether a relay host and sender address are set.
func (m *SMTPMailer) Configured() bool {
	return m != nil && m.config.Host != "" && m.config.From != ""
}

var errHeaderInjection = errors.New("mail header contains a line break")

// SendMail delivers one message and returns its Message-ID.
func (m *SMTPMailer) SendMail(ctx context.Context, to, subject, body string) (string, error) {
	if !m.Configured() {
		return "", errors.New("smtp relay not configured")
	}
	if strings.ContainsAny(to+subject, "\r\n") {
		return "", &ClientError{Provider: "smtp", StatusCode: 400, Message: errHeaderInjection.Error()}
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return "", &ClientError{Provider: "smtp", StatusCode: 400, Message: fmt.Sprintf("invalid recipient %q", to)}
	}
	if err := m.limiter.Allow(ctx); err != nil {
		return "", fmt.Errorf("smtp rate limit wait: %w", err)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), m.config.Host)
	msg := m.compose(to, subject, body, messageID)
	addr := net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port))

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	err := retry.WithBackoff(ctx, m.retryCfg, func() error {
		return classifySMTPError(m.send(addr, auth, m.config.From, []string{to}, msg))
	})
	if err != nil {
		logging.FromContext(ctx).Warn("smtp send failed",
			slog.String("to_domain", domainOf(to)),
			slog.String("error", logging.SanitizeError(err)))
		return "", err
	}
	return messageID, nil
}

func (m *SMTPMailer) compose(to, subject, body, messageID string) []byte {
	from := (&mail.Address{Name: m.config.FromName, Address: m.config.From}).String()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&buf, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	buf.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return buf.Bytes()
}

// classifySMTPError maps SMTP reply codes: 4yz is transient, 5yz permanent.
func classifySMTPError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) >= 3 {
		if code, convErr := strconv.Atoi(msg[:3]); convErr == nil {
			switch {
			case code >= 500:
				return &ClientError{Provider: "smtp", StatusCode: 400, Message: msg}
			case code >= 400:
				return &ServerError{Provider: "smtp", StatusCode: 503, Message: msg}
			}
		}
	}
	return err
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 {
		return addr[i+1:]
	}
	return ""
}
