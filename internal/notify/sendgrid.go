package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendgridProvider 是运营链的兜底渠道。
type SendgridProvider struct {
	client *sendgrid.Client
	from   string
}

func NewSendgridProvider(apiKey, from string) *SendgridProvider {
	return &SendgridProvider{
		client: sendgrid.NewSendClient(apiKey),
		from:   from,
	}
}

func (p *SendgridProvider) Name() string { return "sendgrid" }

func (p *SendgridProvider) Send(ctx context.Context, msg Message) error {
	from := mail.NewEmail("", p.from)
	to := mail.NewEmail("", msg.To)
	m := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)

	resp, err := p.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status=%d body=%s", resp.StatusCode, resp.Body)
	}
	return nil
}
