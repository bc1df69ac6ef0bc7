package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	maxRetries = 3
	retryDelay = 300 * time.Millisecond
)

// Client handles communication with the memory service. The service is
// best-effort: calls are retried a fixed number of times and malformed
// responses are treated as empty rather than surfaced.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a memory client with the provided base URL and timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// SearchRequest is a memory recall request.
type SearchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
}

// Snippet is one recalled memory item.
type Snippet struct {
	ID     string `json:"id"`
	Memory string `json:"memory"`
}

// AddRequest records a (user, assistant) exchange.
type AddRequest struct {
	Interaction []InteractionTurn `json:"interaction"`
	UserID      string            `json:"user_id"`
}

// InteractionTurn is one side of a recorded exchange.
type InteractionTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Search recalls memory snippets relevant to the query and concatenates their
// bodies. A non-array or otherwise malformed response yields the empty string.
func (c *Client) Search(ctx context.Context, userID, query string) (string, error) {
	body, err := c.post(ctx, "/v1/memory/search", SearchRequest{Query: query, UserID: userID})
	if err != nil {
		return "", err
	}

	var snippets []Snippet
	if err := json.Unmarshal(body, &snippets); err != nil {
		c.log.Debug().Err(err).Msg("memory search returned a non-array response")
		return "", nil
	}

	var b strings.Builder
	for _, s := range snippets {
		b.WriteString(s.Memory)
	}
	return b.String(), nil
}

// Add records a (user, assistant) exchange for later recall. The response body
// is ignored beyond the status check.
func (c *Client) Add(ctx context.Context, userID, userText, assistantText string) error {
	req := AddRequest{
		Interaction: []InteractionTurn{
			{Role: "user", Content: userText},
			{Role: "assistant", Content: assistantText},
		},
		UserID: userID,
	}
	_, err := c.post(ctx, "/v1/memory/add", req)
	return err
}

// post sends a JSON request with retries.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		body, err := c.doPost(ctx, path, jsonData)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if attempt < maxRetries {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func (c *Client) doPost(ctx context.Context, path string, jsonData []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("memory request failed")
		return nil, fmt.Errorf("memory request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
