package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAIAdvisor asks a chat completion model for a JSON-object answer.
type OpenAIAdvisor struct {
	client openai.Client
	model  string
}

// NewOpenAIAdvisor builds a client for apiKey. An empty baseURL uses the
// public endpoint.
func NewOpenAIAdvisor(apiKey, baseURL, model string, opts ...option.RequestOption) *OpenAIAdvisor {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(1)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)
	return &OpenAIAdvisor{client: openai.NewClient(reqOpts...), model: model}
}

func (a *OpenAIAdvisor) Name() string { return "openai" }

func (a *OpenAIAdvisor) Advise(ctx context.Context, req Request) ([]byte, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(req)),
			openai.UserMessage(userPrompt(req, time.Now())),
		},
		Temperature:         openai.Float(0.3),
		MaxCompletionTokens: openai.Int(250),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return nil, errors.New("openai returned empty content")
	}
	return []byte(content), nil
}
