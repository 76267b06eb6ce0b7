package services_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtsight/projection-service/internal/config"
	"github.com/courtsight/projection-service/internal/services"
)

func clientConfig(baseURL string) *config.Config {
	return &config.Config{
		ClaudeAPIKey:   "test-api-key",
		ClaudeBaseURL:  baseURL,
		ClaudeModel:    "claude-sonnet-4-20250514",
		ClaudeTimeout:  5 * time.Second,
		ClaudeMaxToken: 4000,
	}
}

func messagesResponse(text string) map[string]interface{} {
	return map[string]interface{}{
		"id":    "msg_test",
		"model": "claude-sonnet-4-20250514",
		"content": []map[string]interface{}{
			{"type": "text", "text": text},
		},
		"usage": map[string]interface{}{
			"input_tokens":  120,
			"output_tokens": 80,
		},
	}
}

func TestClaudeClientGenerate(t *testing.T) {
	var gotRequest map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "test-api-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messagesResponse(`{"ok":true}`))
	}))
	defer server.Close()

	client := services.NewClaudeClient(clientConfig(server.URL), testLogger())

	text, err := client.Generate(context.Background(), "system prompt", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)

	assert.Equal(t, "system prompt", gotRequest["system"])
	messages, ok := gotRequest["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 1)
}

func TestClaudeClientConcatenatesTextBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := messagesResponse("")
		resp["content"] = []map[string]interface{}{
			{"type": "text", "text": "part one "},
			{"type": "tool_use", "text": "ignored"},
			{"type": "text", "text": "part two"},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := services.NewClaudeClient(clientConfig(server.URL), testLogger())

	text, err := client.Generate(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "part one part two", text)
}

func TestClaudeClientErrorStatuses(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		message     string
		errContains string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, message: "bad key", errContains: "invalid API credentials"},
		{name: "rate limited", status: http.StatusTooManyRequests, message: "slow down", errContains: "rate limit exceeded"},
		{name: "bad request", status: http.StatusBadRequest, message: "bad payload", errContains: "bad request"},
		{name: "server error", status: http.StatusInternalServerError, message: "oops", errContains: "status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]string{"type": "error", "message": tt.message})
			}))
			defer server.Close()

			client := services.NewClaudeClient(clientConfig(server.URL), testLogger())

			_, err := client.Generate(context.Background(), "s", "u")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestClaudeClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(messagesResponse("late"))
	}))
	defer server.Close()

	cfg := clientConfig(server.URL)
	cfg.ClaudeTimeout = 50 * time.Millisecond
	client := services.NewClaudeClient(cfg, testLogger())

	_, err := client.Generate(context.Background(), "s", "u")
	require.Error(t, err)
}

func TestClaudeClientCircuitBreakerOpens(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"type": "error", "message": "down"})
	}))
	defer server.Close()

	client := services.NewClaudeClient(clientConfig(server.URL), testLogger())
	assert.True(t, client.IsHealthy())

	// Trips after more than 3 consecutive failures.
	for i := 0; i < 5; i++ {
		_, err := client.Generate(context.Background(), "s", "u")
		require.Error(t, err)
	}

	assert.False(t, client.IsHealthy())
	// The open circuit fails fast without reaching the server.
	assert.Equal(t, 4, requests)
}
