package transport

import (
	"context"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// SMTPTransport sends through a plain SMTP relay. SMTP has no provider
// message id, so a locally generated one is returned on success.
type SMTPTransport struct {
	dialer *gomail.Dialer
}

func NewSMTP(host string, port int, username, password string) *SMTPTransport {
	return &SMTPTransport{dialer: gomail.NewDialer(host, port, username, password)}
}

func (t *SMTPTransport) Send(_ context.Context, msg Message) (string, error) {
	if err := t.dialer.DialAndSend(compose(msg)); err != nil {
		return "", &Error{Provider: "smtp", Recipient: msg.To, Err: err}
	}
	return uuid.NewString(), nil
}
