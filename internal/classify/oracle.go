// Package classify turns preprocessed signals into classifications. An
// external oracle does the judging; this package owns the prompt plumbing,
// the response parsing with its fallback ladder, the fingerprint-keyed
// cache, and collapse of concurrent identical requests.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Oracle is the classification backend. Implementations return the raw
// assistant text for a system + user prompt pair.
type Oracle interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// TokenEstimator approximates prompt cost before a call is made.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator approximates tokens as len/4, the usual rule of thumb
// for English prose.
type CharEstimator struct{}

func (CharEstimator) Estimate(text string) int { return len(text) / 4 }

// HTTPOracle talks to an OpenAI-compatible chat completions endpoint.
type HTTPOracle struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// HTTPOracleOptions configures an HTTPOracle.
type HTTPOracleOptions struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewHTTPOracle builds a client against the given endpoint. The base URL
// may carry a trailing slash or an explicit /chat/completions suffix;
// both are normalized away.
func NewHTTPOracle(opts HTTPOracleOptions) *HTTPOracle {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	base = strings.TrimSuffix(base, "/chat/completions")
	return &HTTPOracle{
		baseURL: base,
		apiKey:  opts.APIKey,
		model:   opts.Model,
		client:  &http.Client{Timeout: opts.Timeout},
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []chatMsg `json:"messages"`
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Chat implements Oracle.
func (o *HTTPOracle) Chat(ctx context.Context, system, user string) (string, error) {
	payload := chatRequest{
		Model: o.model,
		Messages: []chatMsg{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("oracle: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("oracle: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("oracle: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oracle: HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("oracle: unmarshal response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("oracle: API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("oracle: no choices in response")
	}

	log.Debug().
		Str("model", o.model).
		Dur("latency", time.Since(start)).
		Msg("oracle: chat completed")
	return parsed.Choices[0].Message.Content, nil
}

// stripFences removes markdown code fences around a JSON payload.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if i := strings.LastIndex(s, "```"); i != -1 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
