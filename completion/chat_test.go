package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-portal/domain"
)

func newChatServer(t *testing.T, status int, body string, capture *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatClientSendsRequest(t *testing.T) {
	var got chatRequest
	srv := newChatServer(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`, &got)
	client := NewChatClient(ChatOptions{Endpoint: srv.URL, APIKey: "secret", Model: "m1", MaxTokens: 42, Temperature: 0.5})

	out, err := client.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
	assert.Equal(t, "m1", got.Model)
	assert.Equal(t, 42, got.MaxTokens)
	assert.InDelta(t, 0.5, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, chatMessage{Role: "user", Content: "hello"}, got.Messages[0])
}

func TestChatClientUpstreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "non-2xx", status: http.StatusTooManyRequests, body: `{"error":"slow down"}`},
		{name: "empty choices", status: http.StatusOK, body: `{"choices":[]}`},
		{name: "garbage", status: http.StatusOK, body: `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newChatServer(t, tt.status, tt.body, nil)
			client := NewChatClient(ChatOptions{Endpoint: srv.URL, Model: "m"})
			_, err := client.Complete(context.Background(), "x")
			assert.ErrorIs(t, err, domain.ErrUpstream)
			assert.Equal(t, domain.KindUpstream, domain.Kind(err))
		})
	}
}

func TestChatClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	client := NewChatClient(ChatOptions{Endpoint: srv.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := client.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestChatClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewChatClient(ChatOptions{Endpoint: url}).Complete(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrUpstream)
}
