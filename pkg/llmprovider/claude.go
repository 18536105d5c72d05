package llmprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"mcpflow/pkg/chatmsg"
)

const (
	defaultClaudeMaxAttempts = 5
	defaultClaudeBackoffSec  = 2
	defaultClaudeMaxTokens   = 4096
)

// ClaudeConfig configures a ClaudeProvider.
type ClaudeConfig struct {
	APIKey      string
	BaseURL     string
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Sleep       func(time.Duration)
}

// ClaudeProvider adapts chatmsg's provider-agnostic request shape to the
// Anthropic Messages API via anthropic-sdk-go.
type ClaudeProvider struct {
	client      anthropic.Client
	maxAttempts int
	backoff     func(attempt int) time.Duration
	sleep       func(time.Duration)
}

// NewClaudeProvider builds a ClaudeProvider from cfg.
func NewClaudeProvider(cfg ClaudeConfig) (*ClaudeProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("claude: API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultClaudeMaxAttempts
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = claudeDefaultBackoff
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	return &ClaudeProvider{
		client:      anthropic.NewClient(opts...),
		maxAttempts: maxAttempts,
		backoff:     backoff,
		sleep:       sleep,
	}, nil
}

// Name returns "claude".
func (p *ClaudeProvider) Name() string {
	return "claude"
}

// Complete sends req to the Claude API, retrying transient failures with
// exponential backoff.
func (p *ClaudeProvider) Complete(ctx context.Context, req Request) (Response, error) {
	messages, err := convertMessagesToClaude(req.Messages)
	if err != nil {
		return Response{}, fmt.Errorf("claude: convert messages: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	// The Messages API takes one system string, not a system role within
	// Messages, so every system-role chat message folds in here too (the
	// discovery manifest chatorch inserts as a system message included).
	if system := joinSystemContent(req.System, req.Messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := convertToolsToClaude(req.Tools)
		if err != nil {
			return Response{}, fmt.Errorf("claude: convert tools: %w", err)
		}
		params.Tools = tools
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		attempts = attempt
		msg, err := p.client.Messages.New(ctx, params)
		if err == nil {
			return claudeResponseToResponse(msg), nil
		}
		lastErr = err
		if attempt == p.maxAttempts || !isRetryableClaudeError(err) {
			break
		}
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		p.sleep(p.backoff(attempt))
	}
	return Response{}, chatmsg.TransportError(fmt.Sprintf("claude request failed after %d attempts", attempts), lastErr)
}

// joinSystemContent concatenates the request's system prompt with any
// system-role messages in the transcript, in order, separated by a blank
// line.
func joinSystemContent(system string, messages []chatmsg.Message) string {
	parts := make([]string, 0, len(messages)+1)
	if system != "" {
		parts = append(parts, system)
	}
	for _, m := range messages {
		if m.Role == chatmsg.RoleSystem && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

func convertMessagesToClaude(messages []chatmsg.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case chatmsg.RoleSystem:
			continue
		case chatmsg.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case chatmsg.RoleTool:
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		case chatmsg.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input map[string]any
				if tc.Function.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
						return nil, fmt.Errorf("tool call %s arguments: %w", tc.ID, err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return out, nil
}

func convertToolsToClaude(tools []chatmsg.Tool) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		raw, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", t.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, param)
	}
	return out, nil
}

func claudeResponseToResponse(msg *anthropic.Message) Response {
	var text strings.Builder
	var toolCalls []chatmsg.ToolCall
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			args, _ := json.Marshal(variant.Input)
			toolCalls = append(toolCalls, chatmsg.ToolCall{
				ID: variant.ID,
				Function: chatmsg.ToolCallFunction{
					Name:      variant.Name,
					Arguments: string(args),
				},
			})
		}
	}

	return Response{
		Message:    chatmsg.NewAssistantMessage(text.String(), toolCalls),
		StopReason: string(msg.StopReason),
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
		},
	}
}

func isRetryableClaudeError(err error) bool {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return true
	}
	status := apiErr.StatusCode
	if status == 429 || status == 408 || status == 529 {
		return true
	}
	return status >= 500
}

func claudeDefaultBackoff(attempt int) time.Duration {
	base := float64(defaultClaudeBackoffSec) * float64(time.Second)
	factor := math.Pow(2, float64(attempt-1))
	jitter := 0.5 + rand.Float64()
	return time.Duration(base * factor * jitter)
}
