package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/career-assistant/internal/ai"
	"github.com/spigell/career-assistant/internal/utils"
)

const (
	Provider            = "gemini"
	defaultModel        = "gemini-2.5-flash"
	defaultMaxLogLength = 200
	jsonMIMEType        = "application/json"
)

var retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*(ms|s|sec|secs|seconds?)?`)

// contentModels is the part of genai.Models used by the client.
type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client implements ai.Generator on top of the Gemini API.
type Client struct {
	models    contentModels
	model     string
	maxLogLen int
	logger    *zap.Logger
}

// New creates a Client configured for the Gemini API backend.
func New(ctx context.Context, apiKey, model string, maxLogLength int, logger *zap.Logger) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newClient(client.Models, model, maxLogLength, logger), nil
}

func newClient(models contentModels, model string, maxLogLength int, logger *zap.Logger) *Client {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		models:    models,
		model:     model,
		maxLogLen: maxLogLength,
		logger:    logger,
	}
}

func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// Generate sends a single prompt and returns the textual reply.
func (c *Client) Generate(ctx context.Context, req ai.Request) (string, error) {
	if c == nil || c.models == nil {
		return "", ai.NewModelError(ai.KindUnavailable, errors.New("gemini client is not initialized"))
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", ai.NewModelError(ai.KindInvalidResponse, errors.New("prompt must not be empty"))
	}

	config := &genai.GenerateContentConfig{}
	if system := strings.TrimSpace(req.System); system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.Schema != nil {
		config.ResponseMIMEType = jsonMIMEType
		config.ResponseSchema = req.Schema
	}

	c.logger.Debug("gemini generate content request",
		zap.String("call", req.Label),
		zap.Bool("structured", req.Schema != nil),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, c.maxLogLen)),
	)

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		return "", classifyError(err)
	}

	output, err := responseText(resp)
	if err != nil {
		return "", ai.NewModelError(ai.KindInvalidResponse, err)
	}

	c.logger.Debug("gemini generate content response",
		zap.String("call", req.Label),
		zap.Int("response_length", utf8.RuneCountInString(output)),
		zap.String("response_preview", utils.TruncateForLog(output, c.maxLogLen)),
	)

	return output, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("gemini api returned no response")
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
		// Only the first candidate with content is used.
		if builder.Len() > 0 {
			break
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	return output, nil
}

func classifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ai.NewModelError(ai.KindTimeout, err)
	}

	if apiErr, ok := asAPIError(err); ok {
		modelErr := ai.NewModelError(kindForStatus(apiErr.Code), err)
		if modelErr.Kind == ai.KindRateLimited {
			modelErr.RetryAfter = retryAfter(apiErr)
		}
		return modelErr
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ai.NewModelError(ai.KindTimeout, err)
	}

	return ai.NewModelError(ai.KindUnavailable, err)
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}

func kindForStatus(code int) ai.Kind {
	switch code {
	case http.StatusTooManyRequests:
		return ai.KindRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ai.KindTimeout
	default:
		return ai.KindUnavailable
	}
}

// retryAfter reads the delay from a google.rpc.RetryInfo detail or from the message text.
func retryAfter(apiErr genai.APIError) time.Duration {
	for _, detail := range apiErr.Details {
		raw, ok := detail["retryDelay"].(string)
		if !ok {
			continue
		}
		if d, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil {
			return d
		}
	}

	match := retryAfterPattern.FindStringSubmatch(apiErr.Message)
	if match == nil {
		return 0
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}
	if strings.EqualFold(match[2], "ms") {
		return time.Duration(value * float64(time.Millisecond))
	}
	return time.Duration(value * float64(time.Second))
}
