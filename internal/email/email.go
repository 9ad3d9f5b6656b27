// Package email delivers the workflow notifications over SMTP.
//
// Every message is plain text in UTF-8. The connection is upgraded with
// STARTTLS before authenticating.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"
)

const (
	defaultPort = "587"
	dialTimeout = 10 * time.Second
)

// Config holds SMTP configuration.
type Config struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

// Enabled returns true if SMTP is configured with at least a host.
func (c *Config) Enabled() bool {
	return c.Host != ""
}

// Validate reports every missing field at once and defaults the port to 587.
func (c *Config) Validate() error {
	var missing []string
	for _, f := range []struct{ name, v string }{
		{"host", c.Host},
		{"username", c.Username},
		{"password", c.Password},
		{"from", c.From},
	} {
		if f.v == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) != 0 {
		return fmt.Errorf("smtp: missing %s", strings.Join(missing, ", "))
	}
	if c.Port == "" {
		c.Port = defaultPort
	}
	return nil
}

// Message is one email sent to one or more recipients.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// encode renders m as an RFC 5322 message. Translated subjects are encoded
// as RFC 2047 words when they are not plain ASCII.
func (m *Message) encode(from string, date time.Time) []byte {
	var b bytes.Buffer
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	header("From", from)
	header("To", strings.Join(m.To, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	header("Date", date.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	b.WriteString("\r\n")
	// Bare LF is not allowed in the DATA section.
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(m.Body, "\r\n", "\n"), "\n", "\r\n"))
	return b.Bytes()
}

// Service sends the workflow emails.
type Service struct {
	Config Config
}

// SendModeChange tells a collaborator that a project changed publish mode.
func (s *Service) SendModeChange(ctx context.Context, to, name, title, description, projectURL string, locale Locale) error {
	subject, body := ModeChangeEmail(locale, name, title, description, projectURL)
	return s.deliver(ctx, &Message{To: []string{to}, Subject: subject, Body: body})
}

// SendReviewSummary sends the list of projects waiting for review to staff.
func (s *Service) SendReviewSummary(ctx context.Context, to []string, total int, items []ReviewItem) error {
	subject, body := ReviewSummaryEmail(DefaultLocale, total, items)
	return s.deliver(ctx, &Message{To: to, Subject: subject, Body: body})
}

func (s *Service) deliver(ctx context.Context, m *Message) error {
	if len(m.To) == 0 {
		return errors.New("smtp: no recipient")
	}
	c, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Quit(); err != nil {
			slog.WarnContext(ctx, "SMTP quit failed", "err", err)
		}
	}()
	if err := c.Mail(s.Config.From); err != nil {
		return fmt.Errorf("smtp: mail from: %w", err)
	}
	for _, rcpt := range m.To {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp: rcpt %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp: data: %w", err)
	}
	if _, err := w.Write(m.encode(s.Config.From, time.Now())); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp: data end: %w", err)
	}
	slog.InfoContext(ctx, "Email sent", "to", m.To, "subject", m.Subject)
	return nil
}

// dial returns an authenticated client over TLS.
func (s *Service) dial(ctx context.Context) (*smtp.Client, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(s.Config.Host, s.Config.Port))
	if err != nil {
		return nil, fmt.Errorf("smtp: dial: %w", err)
	}
	c, err := smtp.NewClient(conn, s.Config.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp: greeting: %w", err)
	}
	if err := c.StartTLS(&tls.Config{ServerName: s.Config.Host, MinVersion: tls.VersionTLS12}); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("smtp: starttls: %w", err)
	}
	if err := c.Auth(smtp.PlainAuth("", s.Config.Username, s.Config.Password, s.Config.Host)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("smtp: auth: %w", err)
	}
	return c, nil
}
