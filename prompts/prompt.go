package prompts

import "strings"

// Prompt is a prompt definition fetched from the platform: template
// strings, model parameters, and tool schemas, plus the revision
// identifier used to detect refresh changes.
type Prompt struct {
	ID         string           `json:"id"`
	Version    string           `json:"version"`
	RevisionID string           `json:"revisionId"`
	Params     *Params          `json:"params,omitempty"`
	Templates  []Template       `json:"templates"`
	Tools      []map[string]any `json:"tools,omitempty"`
}

// Params carries the LLM model parameters configured for a prompt version.
type Params struct {
	Version string         `json:"version"`
	Params  map[string]any `json:"params"`
}

// Template is one named template within a prompt.
type Template struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Template string `json:"template"`
}

// MajorVersion returns the major component of the prompt's version, or
// the undeployed sentinel.
func (p *Prompt) MajorVersion() string {
	if p.Version == VersionUndeployed {
		return VersionUndeployed
	}
	major, _, _ := strings.Cut(p.Version, ".")
	return major
}

// MinorVersion returns the minor component of the prompt's version, or
// the undeployed sentinel.
func (p *Prompt) MinorVersion() string {
	if p.Version == VersionUndeployed {
		return VersionUndeployed
	}
	_, minor, _ := strings.Cut(p.Version, ".")
	return minor
}
