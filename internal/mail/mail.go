// Package mail delivers finished answers by email over an SMTP relay.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	cerrors "github.com/Ads2024/Demo-Assistant-API-AI/internal/errors"
)

// DefaultSubject is used when the caller passes an empty subject.
const DefaultSubject = "Your assistant answer"

// Sender sends plain text mail with PLAIN auth, upgrading to TLS when the
// server offers STARTTLS.
type Sender struct {
	Host     string
	Port     int
	From     string
	Password string

	dialTimeout time.Duration
	now         func() time.Time
}

func NewSender(host string, port int, from, password string) *Sender {
	return &Sender{
		Host:        host,
		Port:        port,
		From:        from,
		Password:    password,
		dialTimeout: 30 * time.Second,
		now:         time.Now,
	}
}

// Send mails body to the address to.
func (s *Sender) Send(ctx context.Context, to, subject, body string) error {
	const op cerrors.Op = "mail.Send"

	rcpt, err := netmail.ParseAddress(to)
	if err != nil {
		return cerrors.E(op, cerrors.KindEmail, fmt.Sprintf("invalid recipient %q", to), err)
	}
	from, err := netmail.ParseAddress(s.From)
	if err != nil {
		return cerrors.E(op, cerrors.KindConfig, fmt.Sprintf("invalid sender %q", s.From), err)
	}
	if subject == "" {
		subject = DefaultSubject
	}
	msg := buildMessage(from.Address, rcpt.Address, subject, body, s.now())

	if err := s.deliver(ctx, from.Address, rcpt.Address, msg); err != nil {
		return cerrors.E(op, cerrors.KindEmail, err)
	}
	return nil
}

func (s *Sender) deliver(ctx context.Context, from, to string, msg []byte) error {
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	d := net.Dialer{Timeout: s.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.Host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.Password != "" {
		if err := c.Auth(smtp.PlainAuth("", from, s.Password, s.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return c.Quit()
}

// buildMessage renders an RFC 5322 message with CRLF line endings.
func buildMessage(from, to, subject, body string, date time.Time) []byte {
	var sb strings.Builder
	header := func(k, v string) {
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(v)
		sb.WriteString("\r\n")
	}
	header("From", from)
	header("To", to)
	header("Subject", mimeSubject(subject))
	header("Date", date.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	sb.WriteString("\r\n")

	body = strings.ReplaceAll(body, "\r\n", "\n")
	sb.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	if !strings.HasSuffix(body, "\n") {
		sb.WriteString("\r\n")
	}
	return []byte(sb.String())
}

// mimeSubject encodes non-ASCII subjects and drops line breaks.
func mimeSubject(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for _, r := range s {
		if r > 127 {
			return mime.QEncoding.Encode("utf-8", s)
		}
	}
	return s
}
