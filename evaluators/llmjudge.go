package evaluators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/stellarlinkco/evalsight-go/runner"
)

const (
	defaultJudgeModel = "gpt-4o"

	selectAnswerTool = "select_answer"
)

// ScoreChoice maps an answer the judge model may pick to a numeric score.
type ScoreChoice struct {
	Name  string
	Value float64
}

// LLMJudge asks an OpenAI chat model to grade an output by picking one of
// a fixed set of answers. The model is forced through a function call so
// the answer is always machine-readable.
type LLMJudge[T runner.TestCase, O any] struct {
	EvaluatorID string

	// Client is the OpenAI client used for judging. Required.
	Client *openai.Client

	// Model defaults to gpt-4o.
	Model string

	// MakePrompt renders the grading prompt for one test case and its
	// output. Required.
	MakePrompt func(T, O) string

	// ScoreChoices are the answers the judge may pick. Required,
	// non-empty, distinct names.
	ScoreChoices []ScoreChoice

	// Threshold applies to the chosen score; nil means no threshold.
	Threshold *runner.Threshold

	Concurrency int64
}

func (e LLMJudge[T, O]) ID() string            { return e.EvaluatorID }
func (e LLMJudge[T, O]) MaxConcurrency() int64 { return e.Concurrency }

func (e LLMJudge[T, O]) Evaluate(ctx context.Context, tc T, output O) (*runner.Evaluation, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}

	model := strings.TrimSpace(e.Model)
	if model == "" {
		model = defaultJudgeModel
	}

	names := make([]string, len(e.ScoreChoices))
	for i, c := range e.ScoreChoices {
		names[i] = c.Name
	}

	resp, err := e.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You are an expert evaluator. Answer by calling the " + selectAnswerTool +
					" function with your reasoning and exactly one of the allowed answers.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: e.MakePrompt(tc, output),
			},
		},
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        selectAnswerTool,
				Description: "Record the reasoning and the chosen answer.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"reason": map[string]any{"type": "string"},
						"answer": map[string]any{"type": "string", "enum": names},
					},
					"required": []string{"reason", "answer"},
				},
			},
		}},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: selectAnswerTool},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("evaluators: %s: judge request: %w", e.EvaluatorID, err)
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return nil, fmt.Errorf("evaluators: %s: judge returned no answer", e.EvaluatorID)
	}

	var parsed struct {
		Reason string `json:"reason"`
		Answer string `json:"answer"`
	}
	args := resp.Choices[0].Message.ToolCalls[0].Function.Arguments
	if err := json.Unmarshal([]byte(args), &parsed); err != nil {
		return nil, fmt.Errorf("evaluators: %s: parse judge answer: %w", e.EvaluatorID, err)
	}

	for _, c := range e.ScoreChoices {
		if c.Name == parsed.Answer {
			return &runner.Evaluation{
				Score:     c.Value,
				Threshold: e.Threshold,
				Metadata: map[string]any{
					"reason": parsed.Reason,
					"answer": parsed.Answer,
				},
			}, nil
		}
	}
	return nil, fmt.Errorf("evaluators: %s: judge picked unknown answer %q", e.EvaluatorID, parsed.Answer)
}

func (e LLMJudge[T, O]) validate() error {
	if e.Client == nil {
		return errors.New("evaluators: " + e.EvaluatorID + ": Client is required")
	}
	if e.MakePrompt == nil {
		return errors.New("evaluators: " + e.EvaluatorID + ": MakePrompt is required")
	}
	if len(e.ScoreChoices) == 0 {
		return errors.New("evaluators: " + e.EvaluatorID + ": at least one score choice is required")
	}
	seen := make(map[string]struct{}, len(e.ScoreChoices))
	for _, c := range e.ScoreChoices {
		if strings.TrimSpace(c.Name) == "" {
			return errors.New("evaluators: " + e.EvaluatorID + ": score choice with empty name")
		}
		if _, ok := seen[c.Name]; ok {
			return fmt.Errorf("evaluators: %s: duplicate score choice %q", e.EvaluatorID, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}
