package translate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAI translates through the chat completion API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates the backend. baseURL overrides the API endpoint, mostly
// for tests and compatible gateways.
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAI) Name() string { return ProviderOpenAI }

func (o *OpenAI) Translate(ctx context.Context, text, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: Prompt(target)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxCompletionTokens: 400,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	return SanitizeAIText(resp.Choices[0].Message.Content), nil
}

// Prompt is the instruction shared by the model backends.
func Prompt(target string) string {
	return fmt.Sprintf(`Translate the following news headline into %s.
Keep names of people, brands and organisations as they are.
Reply with the translation only, without quotes or comments.`, LanguageName(target))
}
