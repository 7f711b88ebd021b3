// Package email provides an SMTP implementation of authflow.SendEmail.
package email

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

// SMTPConfig holds the SMTP server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// AppName shows up in subjects and greetings.
	AppName string
}

// SMTPSender delivers confirmation and reset emails over SMTP.
type SMTPSender struct {
	config SMTPConfig
	client *mail.Client
}

func NewSMTPSender(config SMTPConfig) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithPort(config.Port),
		mail.WithTimeout(30 * time.Second),
	}
	if config.Username != "" && config.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(config.Username),
			mail.WithPassword(config.Password),
		)
	}

	client, err := mail.NewClient(config.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating mail client: %w", err)
	}
	return &SMTPSender{config: config, client: client}, nil
}

func (s *SMTPSender) appName() string {
	if s.config.AppName != "" {
		return s.config.AppName
	}
	return "our service"
}

func (s *SMTPSender) send(to, subject, textBody, htmlBody string) error {
	msg := mail.NewMsg()
	if err := msg.From(s.config.From); err != nil {
		return fmt.Errorf("setting from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, textBody)
	msg.AddAlternativeString(mail.TypeTextHTML, htmlBody)

	if err := s.client.DialAndSend(msg); err != nil {
		slog.Error("sending email", "to", to, "err", err)
		return err
	}
	slog.Info("email sent", "to", to, "subject", subject)
	return nil
}

func greeting(name string) string {
	if name == "" {
		return "Hello,"
	}
	return fmt.Sprintf("Hello %s,", name)
}

func (s *SMTPSender) SendConfirmationEmail(to string, name string, confirmLink string) error {
	subject := fmt.Sprintf("Confirm your email for %s", s.appName())
	text := fmt.Sprintf("%s\n\nPlease confirm your email address by visiting:\n\n%s\n\nIf you did not sign up, you can ignore this message.\n",
		greeting(name), confirmLink)
	html := fmt.Sprintf(`<p>%s</p>
<p>Please confirm your email address by clicking <a href=%q>this link</a>.</p>
<p>If you did not sign up, you can ignore this message.</p>`,
		greeting(name), confirmLink)
	return s.send(to, subject, text, html)
}

func (s *SMTPSender) SendPasswordResetEmail(to string, name string, resetLink string) error {
	subject := fmt.Sprintf("Reset your password for %s", s.appName())
	text := fmt.Sprintf("%s\n\nReset your password by visiting:\n\n%s\n\nThe link expires in one hour. If you did not request a reset, you can ignore this message.\n",
		greeting(name), resetLink)
	html := fmt.Sprintf(`<p>%s</p>
<p>Reset your password by clicking <a href=%q>this link</a>.</p>
<p>The link expires in one hour. If you did not request a reset, you can ignore this message.</p>`,
		greeting(name), resetLink)
	return s.send(to, subject, text, html)
}
