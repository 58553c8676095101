package label

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// #endregion

// #region prompt

const systemPrompt = "You are an expert at analyzing user behavior patterns " +
	"and writing one concise, specific sentence that generalizes them."

// #endregion

// #region provider

// OpenAIProvider generates statements through the OpenAI chat API.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider builds a provider for the given API key and model.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// GenerateLabel asks the model for a single generalized statement.
func (p *OpenAIProvider) GenerateLabel(ctx context.Context, texts []string) (string, error) {
	if p.model == "" {
		return "", errors.New("openai provider: model is empty")
	}
	if len(texts) == 0 {
		return "", errors.New("openai provider: no member texts")
	}

	var b strings.Builder
	b.WriteString("Summarize the following related behaviors as one sentence ")
	b.WriteString("starting with \"Subject\". Behaviors:\n")
	for _, t := range texts {
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteString("\n")
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(b.String()),
		},
		MaxTokens:   openai.Int(100),
		Temperature: openai.Float(0.3),
	})
	if err != nil {
		return "", fmt.Errorf("label completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("label completion: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// #endregion
