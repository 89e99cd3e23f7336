package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ResendProvider 走 Bearer Token + JSON 的事务邮件接口（Resend 风格）。
type ResendProvider struct {
	rc   *resty.Client
	from string
}

func NewResendProvider(baseURL, apiKey, from string) *ResendProvider {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &ResendProvider{rc: rc, from: from}
}

func (p *ResendProvider) Name() string { return "resend" }

func (p *ResendProvider) Send(ctx context.Context, msg Message) error {
	body := map[string]any{
		"from":    p.from,
		"to":      msg.To,
		"subject": msg.Subject,
	}
	if msg.HTML != "" {
		body["html"] = msg.HTML
	}
	if msg.Text != "" {
		body["text"] = msg.Text
	}

	resp, err := p.rc.R().
		SetContext(ctx).
		SetBody(body).
		Post("/emails")
	if err != nil {
		return fmt.Errorf("resend send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("resend send: status=%d body=%s", resp.StatusCode(), resp.String())
	}
	return nil
}
