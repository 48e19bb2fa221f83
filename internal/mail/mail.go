// Package mail renders and delivers transactional e-mail.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/patisserie-labs/storefront/pkg/logger"
)

// Message is a rendered e-mail.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// ImplicitTLS dials TLS directly (SMTPS) instead of upgrading with STARTTLS.
	ImplicitTLS bool
	Timeout     time.Duration
}

// SMTPMailer sends through an SMTP relay.
type SMTPMailer struct {
	cfg  SMTPConfig
	from *mail.Address
	log  *logger.Logger
}

func NewSMTPMailer(cfg SMTPConfig, log *logger.Logger) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("parse smtp from address: %w", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log == nil {
		log = logger.NewDefault("mail")
	}
	return &SMTPMailer{cfg: cfg, from: from, log: log}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("parse recipient: %w", err)
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	dialer := &net.Dialer{Timeout: m.cfg.Timeout}
	tlsConfig := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}

	var conn net.Conn
	if m.cfg.ImplicitTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(m.cfg.Timeout))
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if !m.cfg.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(m.from.Address); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to.Address); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildMIME(m.from, to, msg)); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	if err := client.Quit(); err != nil {
		m.log.WithContext(ctx).WithError(err).Debug("smtp quit")
	}

	m.log.WithContext(ctx).WithField("subject", msg.Subject).Info("mail sent")
	return nil
}

// buildMIME renders a multipart/alternative message with text and HTML parts.
func buildMIME(from, to *mail.Address, msg Message) []byte {
	boundary := "b-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	var b strings.Builder
	header := func(k, v string) { b.WriteString(k + ": " + v + "\r\n") }

	header("From", from.String())
	header("To", to.String())
	header("Subject", mimeEncodeHeader(msg.Subject))
	header("Date", time.Now().Format(time.RFC1123Z))
	header("Message-ID", "<"+uuid.NewString()+"@"+domainOf(from.Address)+">")
	header("MIME-Version", "1.0")
	header("Content-Type", `multipart/alternative; boundary="`+boundary+`"`)
	b.WriteString("\r\n")

	writePart := func(contentType, body string) {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: " + contentType + "; charset=UTF-8\r\n")
		b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
		b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
		b.WriteString("\r\n")
	}
	if msg.Text != "" {
		writePart("text/plain", msg.Text)
	}
	if msg.HTML != "" {
		writePart("text/html", msg.HTML)
	}
	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String())
}

func mimeEncodeHeader(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.QEncoding.Encode("UTF-8", s)
		}
	}
	return s
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return "localhost"
}

// LogMailer logs messages instead of sending them. Used in development.
type LogMailer struct {
	log *logger.Logger
}

func NewLogMailer(log *logger.Logger) *LogMailer {
	if log == nil {
		log = logger.NewDefault("mail")
	}
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.log.WithContext(ctx).
		WithField("to", msg.To).
		WithField("subject", msg.Subject).
		WithField("text", msg.Text).
		Info("mail delivery skipped (log mailer)")
	return nil
}
