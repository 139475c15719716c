// Package openaitrace wraps an OpenAI client so every chat completion
// emits request, response, and error events through a tracer.
package openaitrace

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/stellarlinkco/evalsight-go/tracer"
)

const provider = "openai"

// Client is a traced OpenAI chat client.
type Client struct {
	openai *openai.Client
	tracer *tracer.Tracer
}

// New wraps an OpenAI client with the given tracer.
func New(c *openai.Client, t *tracer.Tracer) (*Client, error) {
	if c == nil {
		return nil, errors.New("openaitrace: nil openai client")
	}
	if t == nil {
		return nil, errors.New("openaitrace: nil tracer")
	}
	return &Client{openai: c, tracer: t}, nil
}

// CreateChatCompletion forwards to the wrapped client, emitting one
// request event before the call and one response or error event after
// it. The pair shares a span id.
func (c *Client) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	_, end := c.tracer.StartSpan()
	defer end()

	c.tracer.SendEvent(ctx, "ai.completion.request", tracer.WithEventProperties(map[string]any{
		"provider":    provider,
		"model":       req.Model,
		"messages":    len(req.Messages),
		"temperature": req.Temperature,
	}))

	start := time.Now()
	resp, err := c.openai.CreateChatCompletion(ctx, req)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		c.tracer.SendEvent(ctx, "ai.completion.error", tracer.WithEventProperties(map[string]any{
			"provider":  provider,
			"model":     req.Model,
			"latencyMs": latencyMs,
			"error":     err.Error(),
		}))
		return resp, err
	}

	props := map[string]any{
		"provider":     provider,
		"model":        resp.Model,
		"latencyMs":    latencyMs,
		"inputTokens":  resp.Usage.PromptTokens,
		"outputTokens": resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) > 0 {
		props["finishReason"] = string(resp.Choices[0].FinishReason)
	}
	c.tracer.SendEvent(ctx, "ai.completion.response", tracer.WithEventProperties(props))
	return resp, nil
}
