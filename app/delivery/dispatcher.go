package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/feedrelay/feedrelay/app/database"
	"github.com/feedrelay/feedrelay/app/identity"
)

// Dispatcher sends articles that passed a destination's filters to that
// destination's endpoint.
type Dispatcher interface {
	Deliver(ctx context.Context, dest database.Destination, feed *database.Feed, articles []identity.Article) error
}

var _ Dispatcher = (*WebhookDispatcher)(nil)

// WebhookDispatcher posts article batches as JSON to webhook endpoints.
type WebhookDispatcher struct {
	httpClient *http.Client
	userAgent  string
}

func NewWebhookDispatcher(httpClient *http.Client, userAgent string) *WebhookDispatcher {
	return &WebhookDispatcher{
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

type webhookPayload struct {
	FeedID    string             `json:"feed_id"`
	FeedURL   string             `json:"feed_url"`
	FeedTitle string             `json:"feed_title"`
	Articles  []identity.Article `json:"articles"`
}

func (d *WebhookDispatcher) Deliver(ctx context.Context, dest database.Destination, feed *database.Feed, articles []identity.Article) error {
	if len(articles) == 0 {
		return nil
	}

	payload := webhookPayload{
		FeedID:    feed.ID,
		FeedURL:   feed.URL,
		FeedTitle: feed.Title,
		Articles:  articles,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "POST", dest.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver to %s: %w", dest.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook returned HTTP %d for destination %s", resp.StatusCode, dest.ID)
	}

	return nil
}
