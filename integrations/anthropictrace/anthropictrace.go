// Package anthropictrace wraps an Anthropic client so every message
// call emits request, response, and error events through a tracer.
package anthropictrace

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/stellarlinkco/evalsight-go/tracer"
)

const provider = "anthropic"

// Client is a traced Anthropic messages client.
type Client struct {
	anthropic *anthropic.Client
	tracer    *tracer.Tracer
}

// New wraps an Anthropic client with the given tracer.
func New(c *anthropic.Client, t *tracer.Tracer) (*Client, error) {
	if c == nil {
		return nil, errors.New("anthropictrace: nil anthropic client")
	}
	if t == nil {
		return nil, errors.New("anthropictrace: nil tracer")
	}
	return &Client{anthropic: c, tracer: t}, nil
}

// NewMessage forwards to the wrapped client, emitting one request event
// before the call and one response or error event after it. The pair
// shares a span id.
func (c *Client) NewMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	_, end := c.tracer.StartSpan()
	defer end()

	c.tracer.SendEvent(ctx, "ai.completion.request", tracer.WithEventProperties(map[string]any{
		"provider":  provider,
		"model":     string(params.Model),
		"messages":  len(params.Messages),
		"maxTokens": params.MaxTokens,
	}))

	start := time.Now()
	msg, err := c.anthropic.Messages.New(ctx, params)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		c.tracer.SendEvent(ctx, "ai.completion.error", tracer.WithEventProperties(map[string]any{
			"provider":  provider,
			"model":     string(params.Model),
			"latencyMs": latencyMs,
			"error":     err.Error(),
		}))
		return nil, err
	}

	c.tracer.SendEvent(ctx, "ai.completion.response", tracer.WithEventProperties(map[string]any{
		"provider":     provider,
		"model":        string(msg.Model),
		"latencyMs":    latencyMs,
		"inputTokens":  msg.Usage.InputTokens,
		"outputTokens": msg.Usage.OutputTokens,
		"stopReason":   string(msg.StopReason),
	}))
	return msg, nil
}
