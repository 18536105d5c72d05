package llmprovider

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"mcpflow/pkg/chatmsg"
)

const (
	defaultOpenAIMaxAttempts = 5
	defaultOpenAIBackoffSec  = 2
	defaultOpenAIMaxTokens   = 4096
)

// OpenAIConfig configures an OpenAIProvider. BaseURL lets it target any
// OpenAI-compatible endpoint (OpenRouter, DeepSeek, a local proxy, ...).
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Sleep       func(time.Duration)
}

// OpenAIProvider adapts chatmsg's provider-agnostic request shape to the
// OpenAI chat-completions API via sashabaranov/go-openai.
type OpenAIProvider struct {
	client      *openai.Client
	maxAttempts int
	backoff     func(attempt int) time.Duration
	sleep       func(time.Duration)
}

// NewOpenAIProvider builds an OpenAIProvider from cfg.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultOpenAIMaxAttempts
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = openaiDefaultBackoff
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientConfig),
		maxAttempts: maxAttempts,
		backoff:     backoff,
		sleep:       sleep,
	}, nil
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Complete sends req to the chat-completions endpoint, retrying transient
// failures with exponential backoff.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Response, error) {
	messages, err := convertMessagesToOpenAI(req.Messages, req.System)
	if err != nil {
		return Response{}, fmt.Errorf("openai: convert messages: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultOpenAIMaxTokens
	}

	chatReq := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToolsToOpenAI(req.Tools)
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		attempts = attempt
		resp, err := p.client.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			return openaiResponseToResponse(resp), nil
		}
		lastErr = err
		if attempt == p.maxAttempts || !isRetryableOpenAIError(err) {
			break
		}
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		p.sleep(p.backoff(attempt))
	}
	return Response{}, chatmsg.TransportError(fmt.Sprintf("openai request failed after %d attempts", attempts), lastErr)
}

func convertMessagesToOpenAI(messages []chatmsg.Message, system string) ([]openai.ChatCompletionMessage, error) {
	var out []openai.ChatCompletionMessage
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, m := range messages {
		switch m.Role {
		case chatmsg.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		case chatmsg.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case chatmsg.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		case chatmsg.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			out = append(out, msg)
		}
	}
	return out, nil
}

func convertToolsToOpenAI(tools []chatmsg.Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}

func openaiResponseToResponse(resp openai.ChatCompletionResponse) Response {
	if len(resp.Choices) == 0 {
		return Response{Message: chatmsg.NewAssistantMessage("", nil)}
	}
	choice := resp.Choices[0]

	var toolCalls []chatmsg.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, chatmsg.ToolCall{
			ID: tc.ID,
			Function: chatmsg.ToolCallFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	return Response{
		Message:    chatmsg.NewAssistantMessage(choice.Message.Content, toolCalls),
		StopReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}
}

func isRetryableOpenAIError(err error) bool {
	var apiErr *openai.APIError
	if ok := extractOpenAIAPIError(err, &apiErr); ok {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode == 408 {
			return true
		}
		return apiErr.HTTPStatusCode >= 500
	}
	return true
}

func extractOpenAIAPIError(err error, target **openai.APIError) bool {
	if apiErr, ok := err.(*openai.APIError); ok {
		*target = apiErr
		return true
	}
	return false
}

func openaiDefaultBackoff(attempt int) time.Duration {
	base := float64(defaultOpenAIBackoffSec) * float64(time.Second)
	factor := math.Pow(2, float64(attempt-1))
	jitter := 0.5 + rand.Float64()
	return time.Duration(base * factor * jitter)
}
