package mailer

import (
	"context"

	"gopkg.in/gomail.v2"
)

// SMTPMailer dispatches mail through an SMTP relay authenticated with an
// app-specific password (the Gmail style of relay the product runs on).
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, from, username, password string) *SMTPMailer {
	if username == "" {
		username = from
	}
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/html", email.HTML)

	// gomail has no context support; run the dial in a goroutine so a hung
	// relay cannot outlive the caller's deadline.
	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
