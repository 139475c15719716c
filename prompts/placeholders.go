package prompts

import (
	"regexp"
	"sort"
)

// placeholderPattern matches {{ name }} placeholders. The optional leading
// backslash escapes a placeholder so it renders literally.
var placeholderPattern = regexp.MustCompile(`(\\?)\{\{\s*([\w-]+)\s*\}\}`)

// Placeholder is one {{ name }} occurrence parsed from a template.
type Placeholder struct {
	Name    string
	Escaped bool
}

// ParsePlaceholders extracts the distinct placeholders from a template
// string, sorted by name. Escaped placeholders (\{{ name }}) are reported
// with Escaped set and are not substituted at render time.
func ParsePlaceholders(template string) []Placeholder {
	seen := make(map[Placeholder]struct{})
	var out []Placeholder
	for _, match := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		p := Placeholder{Name: match[2], Escaped: match[1] != ""}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return !out[i].Escaped && out[j].Escaped
	})
	return out
}
