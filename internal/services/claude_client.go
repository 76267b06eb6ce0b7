package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/courtsight/projection-service/internal/config"
)

// TextGenerator is the engine's view of the external text-generation service:
// an opaque, fallible function from prompt to text. Identical inputs may
// yield different outputs across calls.
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ClaudeClient calls the Claude messages API. Each Generate call is exactly
// one attempt; the interpreter owns the single validation retry, so the
// client never retries on its own.
type ClaudeClient struct {
	httpClient     *http.Client
	logger         *logrus.Logger
	apiKey         string
	baseURL        string
	model          string
	maxTokens      int
	circuitBreaker *gobreaker.CircuitBreaker

	mu          sync.Mutex
	totalTokens int64
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
	Messages    []claudeMessage `json:"messages"`
	System      string          `json:"system,omitempty"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeResponse struct {
	ID      string               `json:"id"`
	Content []claudeContentBlock `json:"content"`
	Model   string               `json:"model"`
	Usage   claudeUsage          `json:"usage"`
}

type claudeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewClaudeClient creates a Claude API client with a circuit breaker and the
// same hard request bound the ingestion-side HTTP calls use.
func NewClaudeClient(cfg *config.Config, logger *logrus.Logger) *ClaudeClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "claude-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Info("Claude API circuit breaker state changed")
		},
	})

	timeout := cfg.ClaudeTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &ClaudeClient{
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger,
		apiKey:         cfg.ClaudeAPIKey,
		baseURL:        cfg.ClaudeBaseURL,
		model:          cfg.ClaudeModel,
		maxTokens:      cfg.ClaudeMaxToken,
		circuitBreaker: cb,
	}
}

// Generate sends one prompt to the API and returns the concatenated text
// content. A timeout is treated identically to any other call failure.
func (c *ClaudeClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	request := claudeRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: 0.3, // factual, bounded adjustments want a low temperature
		Messages: []claudeMessage{
			{Role: "user", Content: userPrompt},
		},
		System: systemPrompt,
	}

	response, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.makeRequest(ctx, request)
	})
	if err != nil {
		return "", fmt.Errorf("claude API request failed: %w", err)
	}

	resp := response.(*claudeResponse)
	c.trackTokenUsage(resp.Usage.InputTokens + resp.Usage.OutputTokens)

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

func (c *ClaudeClient) makeRequest(ctx context.Context, request claudeRequest) (*claudeResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var claudeResp claudeResponse
		if err := json.NewDecoder(resp.Body).Decode(&claudeResp); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return &claudeResp, nil
	}

	var apiErr claudeError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		return nil, fmt.Errorf("API request failed with status %d", resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("invalid API credentials: %s", apiErr.Message)
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limit exceeded: %s", apiErr.Message)
	case http.StatusBadRequest:
		return nil, fmt.Errorf("bad request: %s", apiErr.Message)
	default:
		return nil, fmt.Errorf("unexpected error (status %d): %s", resp.StatusCode, apiErr.Message)
	}
}

func (c *ClaudeClient) trackTokenUsage(tokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalTokens += int64(tokens)

	c.logger.WithFields(logrus.Fields{
		"tokens_used": tokens,
		"total":       c.totalTokens,
	}).Debug("Tracked Claude API token usage")
}

// IsHealthy checks if the Claude API client is healthy
func (c *ClaudeClient) IsHealthy() bool {
	return c.circuitBreaker.State() == gobreaker.StateClosed
}

// CircuitState returns the current circuit breaker state
func (c *ClaudeClient) CircuitState() gobreaker.State {
	return c.circuitBreaker.State()
}
