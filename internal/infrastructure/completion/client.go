package completion

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"resty.dev/v3"

	"openchat/internal/domain/chat"
	"openchat/internal/utils/platformerrors"
)

const (
	requestTimeout       = 120 * time.Second
	dataPrefix           = "data: "
	doneMarker           = "[DONE]"
	scannerInitialBuffer = 12 * 1024        // 12KB
	scannerMaxBuffer     = 10 * 1024 * 1024 // 10MB
)

type choiceDelta struct {
	Content string `json:"content"`
}

type streamChoice struct {
	Delta choiceDelta `json:"delta"`
}

type streamChunk struct {
	Choices []streamChoice `json:"choices"`
}

// Config carries the completion service endpoint and model settings.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

// Client streams chat completions. The upstream may answer either as an SSE
// event stream of delta chunks or as raw text; both are folded into the same
// cumulative onChunk delivery.
type Client struct {
	client *resty.Client
	cfg    Config
	log    zerolog.Logger
}

// NewClient builds a completion client over a shared resty client.
func NewClient(client *resty.Client, cfg Config, log zerolog.Logger) *Client {
	return &Client{
		client: client,
		cfg: Config{
			BaseURL:   strings.TrimRight(cfg.BaseURL, "/"),
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		},
		log: log,
	}
}

// Stream posts a streaming completion request and relays the reply into
// onChunk as cumulative text, returning the final text.
func (c *Client) Stream(ctx context.Context, req chat.CompletionRequest, onChunk func(cumulative string)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	body := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      true,
	}

	resp, err := c.prepareRequest(ctx).
		SetBody(body).
		SetDoNotParseResponse(true).
		Post(c.cfg.BaseURL + "/chat/completions")
	if err != nil {
		return "", platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "streaming request failed")
	}
	if resp.IsError() {
		return "", c.errorFromResponse(ctx, resp)
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return "", platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "streaming request failed: empty response body", nil)
	}
	defer func() {
		if closeErr := resp.RawResponse.Body.Close(); closeErr != nil {
			c.log.Error().Err(closeErr).Msg("unable to close response body")
		}
	}()

	if strings.Contains(resp.Header().Get("Content-Type"), "text/event-stream") {
		return c.relaySSE(resp.RawResponse.Body, onChunk)
	}
	return Relay(resp.RawResponse.Body, onChunk)
}

// relaySSE scans an SSE event stream, folding delta contents into cumulative
// text. Unparseable events are skipped.
func (c *Client) relaySSE(r io.Reader, onChunk func(string)) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scannerInitialBuffer), scannerMaxBuffer)

	var cumulative strings.Builder
	for scanner.Scan() {
		data, found := strings.CutPrefix(scanner.Text(), dataPrefix)
		if !found {
			continue
		}
		if data == doneMarker {
			return cumulative.String(), nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.log.Debug().Err(err).Msg("skipping unparseable stream event")
			continue
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			cumulative.WriteString(chunk.Choices[0].Delta.Content)
			if onChunk != nil {
				onChunk(cumulative.String())
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return cumulative.String(), err
	}
	return cumulative.String(), nil
}

func (c *Client) prepareRequest(ctx context.Context) *resty.Request {
	req := c.client.R().SetContext(ctx)
	req.SetHeader("Content-Type", "application/json")
	req.SetHeader("Accept-Encoding", "identity")
	if strings.TrimSpace(c.cfg.APIKey) != "" {
		req.SetHeader("Authorization", fmt.Sprintf("Bearer %s", c.cfg.APIKey))
	}
	return req
}

func (c *Client) errorFromResponse(ctx context.Context, resp *resty.Response) error {
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "completion request failed", nil)
	}
	defer resp.RawResponse.Body.Close()
	body, err := io.ReadAll(resp.RawResponse.Body)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "completion request failed", nil)
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		trimmed = resp.Status()
	}
	return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal,
		fmt.Sprintf("completion request failed: %s", trimmed), nil)
}
