// Package mailer sends the transactional emails the API produces, currently
// only the account activation link.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Message is one email. HTML is optional; when set the mail is sent as
// multipart/alternative with Text as the fallback part.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers a Message. Implementations must honour ctx cancellation.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// =========================================================================
// SMTP
// =========================================================================

// SMTPConfig is the relay address, credentials and sender. Username may be
// empty for relays that do not authenticate.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTP delivers mail through a relay with PLAIN auth. The relay is expected
// to offer STARTTLS; net/smtp upgrades automatically when it does.
type SMTP struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

// NewSMTP creates an SMTP mailer. Nothing is dialled until Send.
func NewSMTP(cfg SMTPConfig) *SMTP {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTP{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

// Send dials, authenticates and delivers msg, giving up when ctx ends.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	body := buildMessage(s.cfg.From, msg, s.now())

	if err := s.send(addr, auth, s.cfg.From, []string{msg.To}, body); err != nil {
		return fmt.Errorf("mailer: sending to %s: %w", msg.To, err)
	}
	return nil
}

const boundary = "smilecook-alternative"

// buildMessage renders an RFC 5322 message. With an HTML part it becomes
// multipart/alternative with the plain text first.
func buildMessage(from string, msg Message, date time.Time) []byte {
	var b bytes.Buffer

	header := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }
	header("From", from)
	header("To", msg.To)
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", date.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")

	if msg.HTML == "" {
		header("Content-Type", `text/plain; charset="utf-8"`)
		b.WriteString("\r\n")
		b.WriteString(crlf(msg.Text))
		return b.Bytes()
	}

	header("Content-Type", `multipart/alternative; boundary="`+boundary+`"`)
	b.WriteString("\r\n")
	for _, part := range []struct{ typ, body string }{
		{"text/plain", msg.Text},
		{"text/html", msg.HTML},
	} {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString(`Content-Type: ` + part.typ + `; charset="utf-8"` + "\r\n\r\n")
		b.WriteString(crlf(part.body))
		b.WriteString("\r\n")
	}
	b.WriteString("--" + boundary + "--\r\n")
	return b.Bytes()
}

func crlf(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\n", "\r\n")
}

// =========================================================================
// LOG
// =========================================================================

// Log writes messages to the logger instead of sending them. Used when no
// SMTP host is configured so activation links still show up in development.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a mailer that only logs.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

// Send logs the recipient, subject and text body.
func (l *Log) Send(_ context.Context, msg Message) error {
	l.logger.Info("email not sent (no SMTP configured)",
		"to", msg.To,
		"subject", msg.Subject,
		"text", msg.Text,
	)
	return nil
}
