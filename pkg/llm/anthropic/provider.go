package anthropic

import (
	"context"
	"fmt"
	"strings"

	"legal-assistant-be/pkg/llm"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 2048
)

// AnthropicProvider implements llm.LLMProvider on the Messages API.
type AnthropicProvider struct {
	client sdk.Client
	model  string
}

var _ llm.LLMProvider = &AnthropicProvider{}

func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	if model == "" {
		model = DefaultModel
	}
	var client sdk.Client
	if apiKey != "" {
		client = sdk.NewClient(option.WithAPIKey(apiKey))
	} else {
		// falls back to ANTHROPIC_API_KEY
		client = sdk.NewClient()
	}
	return &AnthropicProvider{client: client, model: model}
}

func (p *AnthropicProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	opts := llm.Apply(llm.Options{Model: p.model, MaxTokens: defaultMaxTokens, Temperature: 0.7}, options...)

	var system []string
	messages := make([]sdk.MessageParam, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleAssistant, "model":
			messages = append(messages, sdk.NewAssistantMessage(sdk.NewTextBlock(msg.Content)))
		default:
			messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
		}
	}
	if opts.JSON {
		system = append(system, "Respond with a single JSON object and nothing else.")
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(opts.Model),
		MaxTokens:   int64(opts.MaxTokens),
		Messages:    messages,
		Temperature: sdk.Float(opts.Temperature),
	}
	if len(system) > 0 {
		params.System = []sdk.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var parts []string
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("anthropic returned no text content")
	}
	return strings.Join(parts, ""), nil
}

func (p *AnthropicProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, options...)
}
