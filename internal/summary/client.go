package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/geomark/mapview/internal/config"
)

// ErrNoAPIKey is returned when the client has no credentials.
var ErrNoAPIKey = errors.New("summary API key not configured")

// Source produces a summary for a landmark.
type Source interface {
	Summarize(ctx context.Context, title, description, url string) (string, error)
}

const systemPrompt = "You write one or two plain sentences describing a place for a map popup. " +
	"No markdown, no lists, at most 150 characters."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Client calls an OpenAI-compatible chat completion endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

func NewClient(cfg config.SummaryConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Prompt builds the user message for a landmark.
func Prompt(title, description, url string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Place: %s\n", title)
	if description != "" {
		fmt.Fprintf(&b, "Known description: %s\n", description)
	}
	if url != "" {
		fmt.Fprintf(&b, "Reference: %s\n", url)
	}
	return b.String()
}

// Summarize sends a chat completion request and returns the trimmed reply.
func (c *Client) Summarize(ctx context.Context, title, description, url string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	jsonData, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: Prompt(title, description, url)},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call summary API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("summary API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("summary API returned no choices")
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("summary API returned an empty message")
	}
	return text, nil
}
