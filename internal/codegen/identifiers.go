package codegen

import (
	"strings"
	"unicode"
)

// exportName turns an arbitrary external id into an exported Go
// identifier: "text-summarization" becomes "TextSummarization".
// Leading digits are stripped.
func exportName(s string) string {
	var b strings.Builder
	upperNext := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			if upperNext {
				b.WriteRune(unicode.ToUpper(r))
				upperNext = false
			} else {
				b.WriteRune(r)
			}
		case unicode.IsDigit(r):
			if b.Len() > 0 {
				b.WriteRune(r)
				upperNext = true
			}
		default:
			upperNext = true
		}
	}
	return b.String()
}

// argName turns an arbitrary name into an unexported Go identifier
// suitable for a function argument: "language-requirement" becomes
// "languageRequirement".
func argName(s string) string {
	name := exportName(s)
	if name == "" {
		return name
	}
	name = string(unicode.ToLower(rune(name[0]))) + name[1:]
	if goKeywords[name] {
		name += "Arg"
	}
	return name
}

var goKeywords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true,
	"continue": true, "default": true, "defer": true, "else": true,
	"fallthrough": true, "for": true, "func": true, "go": true,
	"goto": true, "if": true, "import": true, "interface": true,
	"map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true,
	"var": true,
}

// goType infers the Go type for a params value observed in a deployed
// prompt. Unknown shapes fall back to any.
func goType(value any) string {
	switch v := value.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	case float64, int, int64:
		return "float64"
	case []any:
		if len(v) > 0 {
			return "[]" + goType(v[0])
		}
		return "[]any"
	case map[string]any:
		return "map[string]any"
	default:
		return "any"
	}
}
