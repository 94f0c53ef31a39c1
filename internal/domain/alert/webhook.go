package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookForwarder posts critical alerts as JSON to an external endpoint,
// such as a paging service.
type WebhookForwarder struct {
	client *resty.Client
	url    string
}

type webhookPayload struct {
	Source   string    `json:"source"`
	AlertID  string    `json:"alert_id"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Ward     string    `json:"ward,omitempty"`
	Priority int       `json:"priority"`
	BedID    string    `json:"bed_id,omitempty"`
	RaisedAt time.Time `json:"raised_at"`
}

func NewWebhookForwarder(url string) *WebhookForwarder {
	client := resty.New().
		SetTimeout(5*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	return &WebhookForwarder{client: client, url: url}
}

func (w *WebhookForwarder) Forward(ctx context.Context, a *Alert) error {
	payload := webhookPayload{
		Source:   "bedtrack",
		AlertID:  a.ID.String(),
		Severity: a.Severity,
		Message:  a.Message,
		Ward:     a.Ward,
		Priority: a.Priority,
		RaisedAt: a.CreatedAt,
	}
	if a.BedID != nil {
		payload.BedID = a.BedID.String()
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("post alert webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("alert webhook returned %s", resp.Status())
	}
	return nil
}
