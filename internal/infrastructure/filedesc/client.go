package filedesc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

const (
	maxPreviewChars = 3000

	imageCaptionPrompt = "Describe this image in detail, focusing on key objects, actions, and the overall scene. Be concise and precise. Do not include any introductory or concluding phrases, just the description."

	captionTemperature = 0.5
	captionMaxTokens   = 500
)

// unsupportedFormat is returned verbatim for MIME types without a preview.
const unsupportedFormat = "This file type (%s) is not supported for preview, but has been uploaded."

// Client turns uploaded files into text descriptions: images are captioned by
// a vision model, text and PDF files contribute extracted text truncated to a
// fixed length, everything else gets the unsupported placeholder.
type Client struct {
	baseURL     string
	apiKey      string
	visionModel string
	httpClient  *http.Client
	log         zerolog.Logger
}

// NewClient creates a file-description client. baseURL points at the
// completion service used for vision captions.
func NewClient(baseURL, apiKey, visionModel string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		visionModel: visionModel,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// Describe produces a single text description for the file at url.
func (c *Client) Describe(ctx context.Context, url, mimeType string) (string, error) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return c.captionImage(ctx, url)
	case mimeType == "application/pdf":
		return c.extractPDF(ctx, url)
	case strings.HasPrefix(mimeType, "text/"):
		return c.extractText(ctx, url)
	default:
		return fmt.Sprintf(unsupportedFormat, mimeType), nil
	}
}

func (c *Client) captionImage(ctx context.Context, url string) (string, error) {
	request := openai.ChatCompletionRequest{
		Model: c.visionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: imageCaptionPrompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: url}},
				},
			},
		},
		Temperature: captionTemperature,
		MaxTokens:   captionMaxTokens,
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("caption request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var completion openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("caption response contained no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

func (c *Client) extractPDF(ctx context.Context, url string) (string, error) {
	raw, err := c.fetch(ctx, url)
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var b strings.Builder
	if _, err := io.Copy(&b, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return truncate(strings.TrimSpace(b.String())), nil
}

func (c *Client) extractText(ctx context.Context, url string) (string, error) {
	raw, err := c.fetch(ctx, url)
	if err != nil {
		return "", err
	}
	return truncate(string(raw)), nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch file failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= maxPreviewChars {
		return text
	}
	return string(runes[:maxPreviewChars])
}
