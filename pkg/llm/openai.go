package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ChatCompleter captures the subset of the go-openai client used by the
// gateway. Tests substitute a scripted implementation.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// GatewayOptions configures NewGateway.
type GatewayOptions struct {
	// Client overrides the HTTP-backed go-openai client. Required unless
	// APIKey is set.
	Client ChatCompleter
	// APIKey and BaseURL configure the default go-openai client when Client
	// is nil.
	APIKey  string
	BaseURL string
	// DefaultModel is used when a call does not name a model.
	DefaultModel string
	// TPMBudget is the tokens-per-minute budget shared by all calls through
	// this gateway. Zero or negative disables rate limiting.
	TPMBudget int
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Gateway is the production Client. It fronts the OpenAI Chat Completions
// API with a process-local tokens-per-minute limiter.
type Gateway struct {
	chat    ChatCompleter
	model   string
	limiter *tpmLimiter
	logger  *slog.Logger
}

// NewGateway builds the OpenAI-backed gateway.
func NewGateway(opts GatewayOptions) (*Gateway, error) {
	chat := opts.Client
	if chat == nil {
		if opts.APIKey == "" {
			return nil, errors.New("api key is required")
		}
		cfg := openai.DefaultConfig(opts.APIKey)
		if opts.BaseURL != "" {
			cfg.BaseURL = opts.BaseURL
		}
		chat = openai.NewClientWithConfig(cfg)
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		chat:    chat,
		model:   opts.DefaultModel,
		limiter: newTPMLimiter(opts.TPMBudget),
		logger:  logger.With("component", "llm"),
	}, nil
}

// Chat sends the conversation and returns the assistant text verbatim.
func (g *Gateway) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("messages are required")
	}
	model := opts.Model
	if model == "" {
		model = g.model
	}
	if err := g.limiter.wait(ctx, messages); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %v", ErrTimeout, err)
	}

	request := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		request.Messages = append(request.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	if opts.JSONResponse {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	if opts.ReasoningEffort != "" {
		request.ReasoningEffort = opts.ReasoningEffort
	}
	if opts.MaxCompletionTokens > 0 {
		request.MaxCompletionTokens = opts.MaxCompletionTokens
	}

	start := time.Now()
	response, err := g.chat.CreateChatCompletion(ctx, request)
	elapsed := time.Since(start)
	if err != nil {
		mapped := mapProviderError(err)
		g.logger.Error("chat completion failed",
			"tag", opts.Tag,
			"model", model,
			"elapsed", elapsed,
			"error", err)
		return "", mapped
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: response contained no choices", ErrHTTP)
	}
	content := response.Choices[0].Message.Content
	g.logger.Debug("chat completion",
		"tag", opts.Tag,
		"model", model,
		"elapsed", elapsed,
		"prompt_tokens", response.Usage.PromptTokens,
		"completion_tokens", response.Usage.CompletionTokens,
		"response_chars", len(content))
	return content, nil
}

// mapProviderError folds go-openai errors into the gateway taxonomy.
func mapProviderError(err error) error {
	var apiErr *openai.APIError
	switch {
	case errors.As(err, &apiErr):
		return fmt.Errorf("%w: status %d: %s", ErrHTTP, apiErr.HTTPStatusCode, apiErr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
}
