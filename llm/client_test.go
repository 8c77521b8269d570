package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a minimal provider for exercising the client round trip.
type fakeProvider struct {
	name string
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) BuildURL(baseURL string) string { return baseURL }

func (p *fakeProvider) SetHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

func (p *fakeProvider) BuildRequestBody(model string, messages []Message, _ *float64, _ int) ([]byte, error) {
	return json.Marshal(map[string]any{"model": model, "messages": messages})
}

func (p *fakeProvider) ParseResponse(body []byte, model string) (*Response, error) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return &Response{Content: payload.Content, Model: model}, nil
}

func TestClientComplete(t *testing.T) {
	RegisterProvider(&fakeProvider{name: "fake"})

	t.Run("successful round trip", func(t *testing.T) {
		var gotAuth atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth.Store(r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"content": "hello"}`))
		}))
		defer srv.Close()

		client := NewClient()
		resp, err := client.Complete(context.Background(), Request{
			Provider: "fake",
			Model:    "test-model",
			APIKey:   "sk-test",
			Endpoint: srv.URL,
			Messages: []Message{{Role: "user", Content: "hi"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "hello", resp.Content)
		assert.Equal(t, "test-model", resp.Model)
		assert.Equal(t, "Bearer sk-test", gotAuth.Load())
	})

	t.Run("auth failure is fatal provider error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}))
		defer srv.Close()

		client := NewClient()
		_, err := client.Complete(context.Background(), Request{
			Provider: "fake",
			Model:    "test-model",
			Endpoint: srv.URL,
			Messages: []Message{{Role: "user", Content: "hi"}},
		})
		require.Error(t, err)
		assert.True(t, IsProviderError(err))
		assert.False(t, IsTransient(err))
	})

	t.Run("rate limit is transient provider error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "slow down", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		client := NewClient()
		_, err := client.Complete(context.Background(), Request{
			Provider: "fake",
			Model:    "test-model",
			Endpoint: srv.URL,
			Messages: []Message{{Role: "user", Content: "hi"}},
		})
		require.Error(t, err)
		assert.True(t, IsTransient(err))
	})

	t.Run("no internal retry on server error", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := NewClient()
		_, err := client.Complete(context.Background(), Request{
			Provider: "fake",
			Model:    "test-model",
			Endpoint: srv.URL,
			Messages: []Message{{Role: "user", Content: "hi"}},
		})
		require.Error(t, err)
		assert.True(t, IsProviderError(err))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("unknown provider", func(t *testing.T) {
		client := NewClient()
		_, err := client.Complete(context.Background(), Request{
			Provider: "nope",
			Model:    "m",
			Messages: []Message{{Role: "user", Content: "hi"}},
		})
		require.Error(t, err)
		assert.True(t, IsProviderError(err))
	})

	t.Run("validates request fields", func(t *testing.T) {
		client := NewClient()

		_, err := client.Complete(context.Background(), Request{Model: "m", Messages: []Message{{Role: "user", Content: "x"}}})
		assert.ErrorContains(t, err, "provider is required")

		_, err = client.Complete(context.Background(), Request{Provider: "fake", Messages: []Message{{Role: "user", Content: "x"}}})
		assert.ErrorContains(t, err, "model is required")

		_, err = client.Complete(context.Background(), Request{Provider: "fake", Model: "m"})
		assert.ErrorContains(t, err, "at least one message is required")
	})
}
