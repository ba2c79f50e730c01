package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"net/textproto"
	"strings"
)

// EmailConfig holds SMTP relay settings.
type EmailConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// EmailSender delivers messages through a plain SMTP relay.
type EmailSender struct {
	cfg  EmailConfig
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailSender(cfg EmailConfig) *EmailSender {
	return &EmailSender{cfg: cfg, send: smtp.SendMail}
}

func (s *EmailSender) Send(_ context.Context, msg Message) error {
	if msg.Recipient == "" {
		return Terminal(ErrNoRecipient)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)

	if err := s.send(addr, auth, s.cfg.From, []string{msg.Recipient}, []byte(b.String())); err != nil {
		return classifySMTP(err)
	}
	return nil
}

// classifySMTP maps SMTP reply codes onto retry semantics: 4xx is a
// transient relay condition, 5xx is a permanent rejection.
func classifySMTP(err error) error {
	var tp *textproto.Error
	if errors.As(err, &tp) {
		if tp.Code >= 400 && tp.Code < 500 {
			return Retryable(err)
		}
		if tp.Code >= 500 {
			return Terminal(err)
		}
	}
	return Retryable(err)
}
