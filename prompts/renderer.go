package prompts

import (
	"encoding/json"
	"fmt"
)

// TemplateRenderer substitutes placeholder values into a prompt's
// templates by exact name match. Unknown templates and missing arguments
// are render-time errors.
type TemplateRenderer struct {
	templates map[string]string
}

func newTemplateRenderer(p *Prompt) *TemplateRenderer {
	templates := make(map[string]string, len(p.Templates))
	for _, t := range p.Templates {
		templates[t.ID] = t.Template
	}
	return &TemplateRenderer{templates: templates}
}

// Render substitutes args into the named template. Escaped placeholders
// are emitted literally with the escape character removed.
func (r *TemplateRenderer) Render(templateID string, args map[string]string) (string, error) {
	template, ok := r.templates[templateID]
	if !ok {
		return "", fmt.Errorf("prompts: unknown template %q", templateID)
	}
	return substitute(template, args)
}

// ToolRenderer substitutes placeholder values into a prompt's tool
// schemas, keyed by function name.
type ToolRenderer struct {
	tools map[string]map[string]any
}

func newToolRenderer(p *Prompt) *ToolRenderer {
	tools := make(map[string]map[string]any, len(p.Tools))
	for _, tool := range p.Tools {
		if tool["type"] != "function" {
			continue
		}
		fn, ok := tool["function"].(map[string]any)
		if !ok {
			continue
		}
		name, ok := fn["name"].(string)
		if !ok {
			continue
		}
		tools[name] = tool
	}
	return &ToolRenderer{tools: tools}
}

// Render substitutes args into the named tool schema. The schema is
// round-tripped through JSON so placeholders anywhere in the document are
// replaced.
func (r *ToolRenderer) Render(toolName string, args map[string]string) (map[string]any, error) {
	tool, ok := r.tools[toolName]
	if !ok {
		return nil, fmt.Errorf("prompts: unknown tool %q", toolName)
	}

	encoded, err := json.Marshal(tool)
	if err != nil {
		return nil, fmt.Errorf("prompts: encode tool %q: %w", toolName, err)
	}
	replaced, err := substitute(string(encoded), args)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(replaced), &out); err != nil {
		return nil, fmt.Errorf("prompts: decode rendered tool %q: %w", toolName, err)
	}
	return out, nil
}

func substitute(template string, args map[string]string) (string, error) {
	var missing string
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		if groups[1] != "" {
			// Escaped placeholder: drop the escape character, keep the rest.
			return match[1:]
		}
		value, ok := args[groups[2]]
		if !ok {
			if missing == "" {
				missing = groups[2]
			}
			return match
		}
		return value
	})
	if missing != "" {
		return "", fmt.Errorf("prompts: missing value for placeholder %q", missing)
	}
	return rendered, nil
}
