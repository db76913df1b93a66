package types

import "context"

// EmailService sends one templated email.
type EmailService interface {
	SendTemplatedEmail(ctx context.Context, data EmailData) error
}

type EmailData struct {
	To           string
	Subject      string
	Template     string
	FromName     string
	TemplateData map[string]interface{}
}
