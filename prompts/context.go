package prompts

import (
	"encoding/json"
	"fmt"
)

// ExecutionContext is the scoped view of one sampled prompt version: typed
// parameter decoding plus template and tool rendering bound to that
// version's concrete strings. It is only valid for the duration of the
// Exec call that produced it.
type ExecutionContext struct {
	prompt   *Prompt
	renderer *TemplateRenderer
	tools    *ToolRenderer
}

func newExecutionContext(p *Prompt) *ExecutionContext {
	return &ExecutionContext{
		prompt:   p,
		renderer: newTemplateRenderer(p),
		tools:    newToolRenderer(p),
	}
}

// Prompt returns the resolved prompt definition.
func (c *ExecutionContext) Prompt() *Prompt {
	return c.prompt
}

// DecodeParams decodes the prompt's model parameters into v, which should
// be a pointer to a struct with json tags (typically generated).
func (c *ExecutionContext) DecodeParams(v any) error {
	var params map[string]any
	if c.prompt.Params != nil {
		params = c.prompt.Params.Params
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("prompts: encode params: %w", err)
	}
	if err := json.Unmarshal(encoded, v); err != nil {
		return fmt.Errorf("prompts: decode params: %w", err)
	}
	return nil
}

// Render renders the named template with the given placeholder values.
func (c *ExecutionContext) Render(templateID string, args map[string]string) (string, error) {
	return c.renderer.Render(templateID, args)
}

// RenderTool renders the named tool schema with the given placeholder values.
func (c *ExecutionContext) RenderTool(toolName string, args map[string]string) (map[string]any, error) {
	return c.tools.Render(toolName, args)
}

// Track returns the prompt identity suitable for attaching to trace
// events: everything except the model parameters.
func (c *ExecutionContext) Track() map[string]any {
	templates := make([]map[string]string, 0, len(c.prompt.Templates))
	for _, t := range c.prompt.Templates {
		templates = append(templates, map[string]string{
			"id":       t.ID,
			"version":  t.Version,
			"template": t.Template,
		})
	}
	return map[string]any{
		"id":         c.prompt.ID,
		"version":    c.prompt.Version,
		"revisionId": c.prompt.RevisionID,
		"templates":  templates,
	}
}
