package authflow

import "log"

// SendEmail delivers the links the flows generate. Applications provide
// their own implementation; the email package ships an SMTP one.
type SendEmail interface {
	SendConfirmationEmail(to string, name string, confirmLink string) error
	SendPasswordResetEmail(to string, name string, resetLink string) error
}

// ConsoleSender is a development implementation that logs emails to console
type ConsoleSender struct{}

func (c *ConsoleSender) SendConfirmationEmail(to string, name string, confirmLink string) error {
	log.Printf("\n=== EMAIL: Confirmation ===")
	log.Printf("To: %s <%s>", name, to)
	log.Printf("Subject: Confirm your email address")
	log.Printf("Body: Please confirm your email by clicking: %s", confirmLink)
	log.Printf("===========================\n")
	return nil
}

func (c *ConsoleSender) SendPasswordResetEmail(to string, name string, resetLink string) error {
	log.Printf("\n=== EMAIL: Password Reset ===")
	log.Printf("To: %s <%s>", name, to)
	log.Printf("Subject: Reset your password")
	log.Printf("Body: Reset your password by clicking: %s", resetLink)
	log.Printf("==============================\n")
	return nil
}
