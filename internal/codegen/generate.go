package codegen

import (
	"context"
	"encoding/json"
	"fmt"
	"go/format"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/stellarlinkco/evalsight-go/internal/env"
	"github.com/stellarlinkco/evalsight-go/internal/transport"
	"github.com/stellarlinkco/evalsight-go/prompts"
)

const promptsImport = "github.com/stellarlinkco/evalsight-go/prompts"

// Fetcher loads the deployed prompt a generated accessor is derived
// from.
type Fetcher interface {
	FetchPrompt(ctx context.Context, id, major string) (*prompts.Prompt, error)
}

type apiFetcher struct {
	http *transport.Client
}

// NewAPIFetcher builds a Fetcher over the REST API. The key falls back
// to EVALSIGHT_API_KEY and the endpoint to EVALSIGHT_API_ENDPOINT.
func NewAPIFetcher(apiKey, endpoint string) (Fetcher, error) {
	if apiKey == "" {
		apiKey = env.APIKey.Get()
	}
	if apiKey == "" {
		return nil, fmt.Errorf("codegen: no API key provided; set %s", env.APIKey)
	}
	if endpoint == "" {
		endpoint = env.APIEndpoint.Get()
	}
	if endpoint == "" {
		endpoint = prompts.DefaultEndpoint
	}
	return &apiFetcher{http: transport.NewClient(endpoint, apiKey)}, nil
}

func (f *apiFetcher) FetchPrompt(ctx context.Context, id, major string) (*prompts.Prompt, error) {
	path := fmt.Sprintf("/prompts/%s/major/%s/minor/%s",
		url.PathEscape(id), url.PathEscape(major), url.PathEscape(prompts.VersionLatest))
	var p prompts.Prompt
	if err := f.http.Get(ctx, path, &p); err != nil {
		return nil, fmt.Errorf("codegen: fetch prompt %s major %s: %w", id, major, err)
	}
	return &p, nil
}

// Run loads the config, fetches every configured prompt, and writes the
// generated source to the configured outfile.
func Run(ctx context.Context, configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	fetcher, err := NewAPIFetcher("", "")
	if err != nil {
		return err
	}
	src, err := Generate(ctx, cfg, fetcher)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfg.Outfile, src, 0o644); err != nil {
		return fmt.Errorf("codegen: write %s: %w", cfg.Outfile, err)
	}
	return nil
}

// Generate renders the full generated file for a config and returns the
// gofmt-formatted source.
func Generate(ctx context.Context, cfg *Config, fetcher Fetcher) ([]byte, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("// Code generated by evalsight gen. DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "package %s\n\n", cfg.Package)
	b.WriteString("import (\n\t\"context\"\n\n\t\"" + promptsImport + "\"\n)\n\n")

	for _, pc := range cfg.Prompts {
		for _, major := range pc.MajorVersions {
			prompt, err := fetcher.FetchPrompt(ctx, pc.ID, major)
			if err != nil {
				return nil, err
			}
			name := exportName(pc.ID)
			if len(pc.MajorVersions) > 1 {
				name += exportName("v-" + major)
			}
			if err := writePromptCode(&b, name, pc.ID, major, prompt); err != nil {
				return nil, err
			}
		}
	}

	src, err := format.Source([]byte(b.String()))
	if err != nil {
		return nil, fmt.Errorf("codegen: format generated source: %w", err)
	}
	return src, nil
}

func writePromptCode(b *strings.Builder, name, id, major string, prompt *prompts.Prompt) error {
	writeParamsStruct(b, name, prompt)
	writeExecutionContext(b, name, prompt)
	writeManager(b, name, id, major)
	return nil
}

func writeParamsStruct(b *strings.Builder, name string, prompt *prompts.Prompt) {
	fmt.Fprintf(b, "// %sParams mirrors the model params of the deployed prompt.\n", name)
	fmt.Fprintf(b, "type %sParams struct {\n", name)
	if prompt.Params != nil {
		keys := make([]string, 0, len(prompt.Params.Params))
		for k := range prompt.Params.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, "\t%s %s `json:%q`\n", exportName(k), goType(prompt.Params.Params[k]), k)
		}
	}
	b.WriteString("}\n\n")
}

func writeExecutionContext(b *strings.Builder, name string, prompt *prompts.Prompt) {
	ctxName := name + "ExecutionContext"

	fmt.Fprintf(b, "// %s gives typed access to one snapshot of the prompt.\n", ctxName)
	fmt.Fprintf(b, "type %s struct {\n\tbase *prompts.ExecutionContext\n}\n\n", ctxName)

	fmt.Fprintf(b, "func (c %s) Params() (%sParams, error) {\n", ctxName, name)
	fmt.Fprintf(b, "\tvar p %sParams\n\terr := c.base.DecodeParams(&p)\n\treturn p, err\n}\n\n", name)

	templates := append([]prompts.Template(nil), prompt.Templates...)
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	for _, tmpl := range templates {
		writeRenderMethod(b, ctxName, "Render"+exportName(tmpl.ID), "c.base.Render",
			tmpl.ID, "(string, error)", prompts.ParsePlaceholders(tmpl.Template))
	}

	for _, tool := range toolSpecs(prompt) {
		writeRenderMethod(b, ctxName, "RenderTool"+exportName(tool.name), "c.base.RenderTool",
			tool.name, "(map[string]any, error)", tool.placeholders)
	}

	fmt.Fprintf(b, "func (c %s) Track() map[string]any {\n\treturn c.base.Track()\n}\n\n", ctxName)
}

func writeRenderMethod(b *strings.Builder, ctxName, method, target, externalID, returns string, placeholders []prompts.Placeholder) {
	args := make([]string, 0, len(placeholders))
	for _, ph := range placeholders {
		if ph.Escaped {
			continue
		}
		args = append(args, ph.Name)
	}

	fmt.Fprintf(b, "func (c %s) %s(", ctxName, method)
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "%s string", argName(a))
	}
	fmt.Fprintf(b, ") %s {\n", returns)
	fmt.Fprintf(b, "\treturn %s(%q, map[string]string{\n", target, externalID)
	for _, a := range args {
		fmt.Fprintf(b, "\t\t%q: %s,\n", a, argName(a))
	}
	b.WriteString("\t})\n}\n\n")
}

func writeManager(b *strings.Builder, name, id, major string) {
	mgrName := name + "PromptManager"

	fmt.Fprintf(b, "// %s is a prompt manager pinned to prompt %s, major version %s.\n", mgrName, id, major)
	fmt.Fprintf(b, "type %s struct {\n\t*prompts.Manager\n}\n\n", mgrName)

	fmt.Fprintf(b, "func New%s(ctx context.Context, cfg prompts.ManagerConfig, selector prompts.VersionSelector) (*%s, error) {\n", mgrName, mgrName)
	fmt.Fprintf(b, "\tcfg.PromptID = %q\n\tcfg.MajorVersion = %q\n", id, major)
	b.WriteString("\tm, err := prompts.NewManager(ctx, cfg, selector)\n\tif err != nil {\n\t\treturn nil, err\n\t}\n")
	fmt.Fprintf(b, "\treturn &%s{Manager: m}, nil\n}\n\n", mgrName)

	fmt.Fprintf(b, "func (m *%s) Exec(ctx context.Context, fn func(context.Context, %sExecutionContext) error) error {\n", mgrName, name)
	b.WriteString("\treturn m.Manager.Exec(ctx, func(ctx context.Context, ec *prompts.ExecutionContext) error {\n")
	fmt.Fprintf(b, "\t\treturn fn(ctx, %sExecutionContext{base: ec})\n\t})\n}\n\n", name)
}

type toolSpec struct {
	name         string
	placeholders []prompts.Placeholder
}

// toolSpecs extracts function-typed tools and the placeholders embedded
// anywhere in their JSON encoding.
func toolSpecs(prompt *prompts.Prompt) []toolSpec {
	var specs []toolSpec
	for _, tool := range prompt.Tools {
		if t, _ := tool["type"].(string); t != "function" {
			continue
		}
		fn, _ := tool["function"].(map[string]any)
		name, _ := fn["name"].(string)
		if name == "" {
			continue
		}
		encoded, err := json.Marshal(tool)
		if err != nil {
			continue
		}
		specs = append(specs, toolSpec{
			name:         name,
			placeholders: prompts.ParsePlaceholders(string(encoded)),
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].name < specs[j].name })
	return specs
}
