package events

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"visionline/internal/config"
	"visionline/internal/repo"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookPublisher POSTs matching events to one configured URL.
type WebhookPublisher struct {
	hook   config.WebhookConfig
	filter eventFilter
	client *http.Client
}

func NewWebhookPublisher(hook config.WebhookConfig) *WebhookPublisher {
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	return &WebhookPublisher{
		hook:   hook,
		filter: newEventFilter(hook.Events),
		client: &http.Client{Timeout: timeout},
	}
}

// Name derives the cursor key from the URL so reordering hooks keeps progress.
func (p *WebhookPublisher) Name() string {
	sum := sha256.Sum256([]byte(p.hook.URL))
	return "webhook:" + hex.EncodeToString(sum[:])[:16]
}

func (p *WebhookPublisher) Close() {
	p.client.CloseIdleConnections()
}

// Publish skips events outside the hook's filter.
func (p *WebhookPublisher) Publish(ctx context.Context, evt repo.EventRecord) error {
	if !p.filter.match(evt.Type) {
		return nil
	}
	data, err := json.Marshal(NewEnvelope(evt))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Visionline-Event", evt.Type)
	req.Header.Set("X-Visionline-Delivery", evt.EventID)
	req.Header.Set("X-Visionline-Project", evt.ProjectID)
	if strings.TrimSpace(p.hook.Secret) != "" {
		req.Header.Set("X-Visionline-Secret", p.hook.Secret)
	}
	res, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
