// Package completion drafts call scripts and keywords with a text-generation service.
package completion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"sales-portal/domain"
)

// Completer sends a single-turn prompt and returns the generated text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ChatOptions configures ChatClient.
type ChatOptions struct {
	Endpoint    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// ChatClient talks to a chat-completions HTTP endpoint.
type ChatClient struct {
	opts ChatOptions
	http *http.Client
}

// NewChatClient creates a client. A zero Timeout disables the deadline.
func NewChatClient(opts ChatOptions) *ChatClient {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &ChatClient{opts: opts, http: hc}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const maxResponseBytes = 1 << 20

func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	body, err := sonic.Marshal(chatRequest{
		Model:       c.opts.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: completion request: %w", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read completion response: %w", domain.ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: completion service returned %d: %s", domain.ErrUpstream, resp.StatusCode, snippet(data))
	}

	var out chatResponse
	if err := sonic.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: decode completion response: %w", domain.ErrUpstream, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: completion response has no choices", domain.ErrUpstream)
	}
	return out.Choices[0].Message.Content, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
