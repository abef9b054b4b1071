// Package llm wraps the chat-completion endpoint used for grouping and
// recommendations.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrEmptyResponse is returned when the model answered without content.
	ErrEmptyResponse = errors.New("model returned no content")
	// ErrUpstream marks a non-2xx answer from the model endpoint.
	ErrUpstream = errors.New("model endpoint error")
)

type Request struct {
	System      string
	User        string
	Temperature float32
}

// Completer returns the raw JSON text of a single completion.
type Completer interface {
	CompleteJSON(ctx context.Context, req Request) (string, error)
}

type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAI targets any OpenAI-compatible endpoint, e.g. https://api.x.ai/v1.
func NewOpenAI(apiKey, baseURL, model string, timeout time.Duration) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model, timeout: timeout}
}

func (o *OpenAI) CompleteJSON(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		// the client drops a zero temperature from the payload
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, apiErr.HTTPStatusCode, apiErr.Message)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", fmt.Errorf("%w: status %d", ErrUpstream, reqErr.HTTPStatusCode)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
