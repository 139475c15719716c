package prompts

import (
	"strings"
	"testing"
)

func testPrompt() *Prompt {
	return &Prompt{
		ID:         "text-summarization",
		Version:    "2.1",
		RevisionID: "rev_1",
		Params: &Params{
			Version: "1.0",
			Params: map[string]any{
				"model":       "gpt-4o",
				"temperature": 0.3,
				"maxTokens":   256,
			},
		},
		Templates: []Template{
			{ID: "system", Version: "1.0", Template: "You summarize {{ language }} text."},
			{ID: "user", Version: "1.1", Template: "Summarize: {{ document }}\n\nKeep \\{{ literal }} intact."},
		},
		Tools: []map[string]any{
			{
				"type": "function",
				"function": map[string]any{
					"name":        "lookup",
					"description": "Look up {{ subject }} facts.",
					"parameters":  map[string]any{"type": "object"},
				},
			},
		},
	}
}

func TestParsePlaceholders(t *testing.T) {
	t.Parallel()

	got := ParsePlaceholders("{{ b }} {{a}} \\{{ esc }} {{ b }}")
	want := []Placeholder{
		{Name: "a"},
		{Name: "b"},
		{Name: "esc", Escaped: true},
	}
	if len(got) != len(want) {
		t.Fatalf("placeholders = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("placeholders[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	r := newTemplateRenderer(testPrompt())
	out, err := r.Render("system", map[string]string{"language": "French"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "You summarize French text." {
		t.Fatalf("out = %q", out)
	}
}

func TestRenderKeepsEscapedPlaceholders(t *testing.T) {
	t.Parallel()

	r := newTemplateRenderer(testPrompt())
	out, err := r.Render("user", map[string]string{"document": "hello world"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "Summarize: hello world") {
		t.Fatalf("substitution missing: %q", out)
	}
	if !strings.Contains(out, "{{ literal }}") {
		t.Fatalf("escaped placeholder was substituted: %q", out)
	}
}

func TestRenderMissingArgument(t *testing.T) {
	t.Parallel()

	r := newTemplateRenderer(testPrompt())
	if _, err := r.Render("system", nil); err == nil {
		t.Fatal("expected error for missing placeholder value")
	}
	if _, err := r.Render("nope", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestRenderTool(t *testing.T) {
	t.Parallel()

	r := newToolRenderer(testPrompt())
	out, err := r.Render("lookup", map[string]string{"subject": "geography"})
	if err != nil {
		t.Fatalf("render tool: %v", err)
	}
	fn, _ := out["function"].(map[string]any)
	if fn["description"] != "Look up geography facts." {
		t.Fatalf("description = %v", fn["description"])
	}

	if _, err := r.Render("missing", nil); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestExecutionContextDecodeParams(t *testing.T) {
	t.Parallel()

	c := newExecutionContext(testPrompt())

	var params struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"maxTokens"`
	}
	if err := c.DecodeParams(&params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if params.Model != "gpt-4o" || params.Temperature != 0.3 || params.MaxTokens != 256 {
		t.Fatalf("params = %+v", params)
	}

	track := c.Track()
	if track["id"] != "text-summarization" || track["version"] != "2.1" {
		t.Fatalf("track = %v", track)
	}
	if _, ok := track["params"]; ok {
		t.Fatal("track should not include params")
	}
}
