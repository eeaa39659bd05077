package executors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/dispatch"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/payload"
)

// Webhook posts built payloads to a platform bridge endpoint. The
// response body, when present, is a flat JSON object merged into the
// execution data; a "ref" key there becomes the platform reference.
type Webhook struct {
	platform domain.Platform
	url      string
	client   *http.Client
}

// NewWebhook builds a webhook adapter for one platform.
func NewWebhook(platform domain.Platform, url string) *Webhook {
	return &Webhook{
		platform: platform,
		url:      url,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook-" + string(w.platform) }

type webhookRequest struct {
	Platform string            `json:"platform"`
	Action   string            `json:"action"`
	Fields   map[string]string `json:"fields"`
}

func (w *Webhook) Execute(ctx context.Context, p payload.Payload) (map[string]string, error) {
	body, err := json.Marshal(webhookRequest{
		Platform: string(w.platform),
		Action:   string(p.Action),
		Fields:   p.Fields,
	})
	if err != nil {
		return nil, dispatch.Permanent(fmt.Errorf("encode payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return nil, dispatch.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, dispatch.Transient(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, dispatch.Transient(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, dispatch.HTTPStatusError(resp.StatusCode, string(data))
	}

	out := map[string]string{}
	if len(data) > 0 {
		// A non-JSON success body is tolerated; the call still counts.
		_ = json.Unmarshal(data, &out)
	}
	return out, nil
}
