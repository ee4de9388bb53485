package transport

import (
	"context"
	"io"

	"gopkg.in/gomail.v2"

	"MailMerge/internal/models"
)

// Message is one composed email for a single recipient.
type Message struct {
	From       string
	To         string
	Subject    string
	HTMLBody   string
	Attachment *models.Attachment
}

// Transport sends one message and returns the provider's message id.
// Failures are reported as *Error; a send never partially succeeds.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Error is a per-recipient transport failure. It never aborts a batch;
// the dispatcher records it and moves on.
type Error struct {
	Provider  string
	Recipient string
	Err       error
}

func (e *Error) Error() string {
	return e.Provider + " send to " + e.Recipient + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// compose builds the MIME message shared by all providers: an HTML body
// plus the optional shared attachment.
func compose(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)

	if att := msg.Attachment; att != nil {
		m.Attach(att.Filename, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(att.Data)
			return err
		}))
	}

	return m
}
