package transport

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESTransport sends raw MIME messages through AWS SES, which is the
// only way SES accepts binary attachments.
type SESTransport struct {
	client *ses.Client
}

func NewSES(client *ses.Client) *SESTransport {
	return &SESTransport{client: client}
}

func (t *SESTransport) Send(ctx context.Context, msg Message) (string, error) {
	var raw bytes.Buffer
	if _, err := compose(msg).WriteTo(&raw); err != nil {
		return "", &Error{Provider: "ses", Recipient: msg.To, Err: fmt.Errorf("build raw message: %w", err)}
	}

	out, err := t.client.SendRawEmail(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(msg.From),
		Destinations: []string{msg.To},
		RawMessage:   &types.RawMessage{Data: raw.Bytes()},
	})
	if err != nil {
		return "", &Error{Provider: "ses", Recipient: msg.To, Err: err}
	}

	return aws.ToString(out.MessageId), nil
}
