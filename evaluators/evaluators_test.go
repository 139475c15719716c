package evaluators

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/stellarlinkco/evalsight-go/runner"
)

type qaCase struct {
	Question string
	Expect   []string
}

func (c qaCase) Hash() string { return c.Question }

func TestHasAllSubstrings(t *testing.T) {
	t.Parallel()

	ev := HasAllSubstrings[qaCase, string]{
		EvaluatorID: "has-all-substrings",
		Substrings:  func(tc qaCase) []string { return tc.Expect },
		OutputText:  func(out string) string { return out },
	}

	eval, err := ev.Evaluate(context.Background(), qaCase{Expect: []string{"foo", "bar"}}, "foo and bar here")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.Score != 1 {
		t.Errorf("score = %v, want 1", eval.Score)
	}
	if passed := eval.Passed(); passed == nil || !*passed {
		t.Errorf("Passed() = %v, want true", passed)
	}
	if len(eval.Assertions) != 2 {
		t.Fatalf("got %d assertions, want 2", len(eval.Assertions))
	}

	eval, err = ev.Evaluate(context.Background(), qaCase{Expect: []string{"foo", "missing"}}, "only foo")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.Score != 0 {
		t.Errorf("score = %v, want 0", eval.Score)
	}
	if passed := eval.Passed(); passed == nil || *passed {
		t.Errorf("Passed() = %v, want false", passed)
	}
	var failed []string
	for _, a := range eval.Assertions {
		if !a.Passed {
			failed = append(failed, a.Criterion)
		}
	}
	if len(failed) != 1 || failed[0] != "missing" {
		t.Errorf("failed assertions = %v, want [missing]", failed)
	}
}

func TestIsEquals(t *testing.T) {
	t.Parallel()

	ev := IsEquals[qaCase, string]{
		EvaluatorID: "is-equals",
		Expected:    func(tc qaCase) string { return tc.Question },
		Actual:      func(out string) string { return out },
	}

	eval, err := ev.Evaluate(context.Background(), qaCase{Question: "x"}, "x")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.Score != 1 {
		t.Errorf("score = %v, want 1", eval.Score)
	}

	eval, err = ev.Evaluate(context.Background(), qaCase{Question: "x"}, "y")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.Score != 0 {
		t.Errorf("score = %v, want 0", eval.Score)
	}
	if eval.Metadata["expectedOutput"] != "x" || eval.Metadata["actualOutput"] != "y" {
		t.Errorf("metadata = %v", eval.Metadata)
	}
}

func TestIsValidJSON(t *testing.T) {
	t.Parallel()

	ev := IsValidJSON[qaCase, string]{
		EvaluatorID: "is-valid-json",
		OutputText:  func(out string) string { return out },
	}

	for out, want := range map[string]float64{
		`{"a": 1}`: 1,
		`[1, 2]`:   1,
		`{"a":`:    0,
		`not json`: 0,
	} {
		eval, err := ev.Evaluate(context.Background(), qaCase{}, out)
		if err != nil {
			t.Fatalf("Evaluate(%q): %v", out, err)
		}
		if eval.Score != want {
			t.Errorf("Evaluate(%q) score = %v, want %v", out, eval.Score, want)
		}
	}
}

func TestEvaluatorMissingExtractors(t *testing.T) {
	t.Parallel()

	if _, err := (HasAllSubstrings[qaCase, string]{EvaluatorID: "e"}).Evaluate(context.Background(), qaCase{}, ""); err == nil {
		t.Error("HasAllSubstrings: expected error without extractors")
	}
	if _, err := (IsEquals[qaCase, string]{EvaluatorID: "e"}).Evaluate(context.Background(), qaCase{}, ""); err == nil {
		t.Error("IsEquals: expected error without extractors")
	}
	if _, err := (IsValidJSON[qaCase, string]{EvaluatorID: "e"}).Evaluate(context.Background(), qaCase{}, ""); err == nil {
		t.Error("IsValidJSON: expected error without extractor")
	}
}

func newJudgeClient(t *testing.T, answer, reason string) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		args, _ := json.Marshal(map[string]string{"reason": reason, "answer": answer})
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:     "chatcmpl-judge",
			Object: "chat.completion",
			Model:  openai.GPT4o,
			Choices: []openai.ChatCompletionChoice{{
				FinishReason: openai.FinishReasonToolCalls,
				Message: openai.ChatCompletionMessage{
					Role: openai.ChatMessageRoleAssistant,
					ToolCalls: []openai.ToolCall{{
						ID:   "call-1",
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      selectAnswerTool,
							Arguments: string(args),
						},
					}},
				},
			}},
		})
	}))
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func TestLLMJudge(t *testing.T) {
	t.Parallel()

	judge := LLMJudge[qaCase, string]{
		EvaluatorID: "helpfulness",
		Client:      newJudgeClient(t, "good", "the answer is complete"),
		MakePrompt: func(tc qaCase, out string) string {
			return "Question: " + tc.Question + "\nAnswer: " + out
		},
		ScoreChoices: []ScoreChoice{
			{Name: "bad", Value: 0},
			{Name: "good", Value: 1},
		},
		Threshold: &runner.Threshold{GTE: ptr(1.0)},
	}

	eval, err := judge.Evaluate(context.Background(), qaCase{Question: "q"}, "a")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.Score != 1 {
		t.Errorf("score = %v, want 1", eval.Score)
	}
	if eval.Metadata["answer"] != "good" || eval.Metadata["reason"] != "the answer is complete" {
		t.Errorf("metadata = %v", eval.Metadata)
	}
	if passed := eval.Passed(); passed == nil || !*passed {
		t.Errorf("Passed() = %v, want true", passed)
	}
}

func TestLLMJudgeUnknownAnswer(t *testing.T) {
	t.Parallel()

	judge := LLMJudge[qaCase, string]{
		EvaluatorID:  "helpfulness",
		Client:       newJudgeClient(t, "sideways", ""),
		MakePrompt:   func(tc qaCase, out string) string { return "p" },
		ScoreChoices: []ScoreChoice{{Name: "good", Value: 1}},
	}

	if _, err := judge.Evaluate(context.Background(), qaCase{}, "a"); err == nil {
		t.Fatal("expected error for answer outside score choices")
	}
}

func TestLLMJudgeValidation(t *testing.T) {
	t.Parallel()

	base := LLMJudge[qaCase, string]{
		EvaluatorID:  "judge",
		Client:       newJudgeClient(t, "good", ""),
		MakePrompt:   func(tc qaCase, out string) string { return "p" },
		ScoreChoices: []ScoreChoice{{Name: "good", Value: 1}},
	}

	missingClient := base
	missingClient.Client = nil
	if _, err := missingClient.Evaluate(context.Background(), qaCase{}, ""); err == nil {
		t.Error("expected error without client")
	}

	missingPrompt := base
	missingPrompt.MakePrompt = nil
	if _, err := missingPrompt.Evaluate(context.Background(), qaCase{}, ""); err == nil {
		t.Error("expected error without MakePrompt")
	}

	noChoices := base
	noChoices.ScoreChoices = nil
	if _, err := noChoices.Evaluate(context.Background(), qaCase{}, ""); err == nil {
		t.Error("expected error without score choices")
	}

	dupChoices := base
	dupChoices.ScoreChoices = []ScoreChoice{{Name: "good"}, {Name: "good"}}
	if _, err := dupChoices.Evaluate(context.Background(), qaCase{}, ""); err == nil {
		t.Error("expected error for duplicate score choices")
	}
}
