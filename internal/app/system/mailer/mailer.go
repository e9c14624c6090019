// internal/app/system/mailer/mailer.go
package mailer

import (
	"fmt"
	"math/rand"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Email is a single outbound message with text and HTML alternatives.
type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender delivers email. The SMTP Mailer is used in production; tests
// and local dev use LogSender.
type Sender interface {
	Send(e Email) error
}

// Mailer sends mail over SMTP with PLAIN auth.
type Mailer struct {
	addr string // host:port
	from string
	auth smtp.Auth
}

// New creates an SMTP Mailer. Pass empty user/pass to skip auth
// (local relays).
func New(host string, port int, user, pass, from string) *Mailer {
	m := &Mailer{
		addr: fmt.Sprintf("%s:%d", host, port),
		from: from,
	}
	if user != "" {
		m.auth = smtp.PlainAuth("", user, pass, host)
	}
	return m
}

// Send delivers the email as a multipart/alternative message.
func (m *Mailer) Send(e Email) error {
	msg := buildMessage(m.from, e)
	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{e.To}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", e.To, err)
	}
	return nil
}

func buildMessage(from string, e Email) []byte {
	boundary := fmt.Sprintf("veil-%d-%d", time.Now().UnixNano(), rand.Int63())

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", e.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", e.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(e.TextBody)
	b.WriteString("\r\n")

	if e.HTMLBody != "" {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(e.HTMLBody)
		b.WriteString("\r\n")
	}

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}

// LogSender writes the email to the log instead of delivering it.
// Used when no SMTP host is configured so signup still works in dev.
type LogSender struct {
	Log *zap.Logger
}

// Send logs the message.
func (s LogSender) Send(e Email) error {
	s.Log.Info("email (not sent, no SMTP configured)",
		zap.String("to", e.To),
		zap.String("subject", e.Subject),
		zap.String("text", e.TextBody))
	return nil
}
