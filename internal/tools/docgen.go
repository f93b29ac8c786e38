package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rahul/lexigpt/internal/docgen"
	"github.com/rahul/lexigpt/internal/events"
)

// DocumentRenderer renders documents and maps their paths to download URLs.
type DocumentRenderer interface {
	Render(ctx context.Context, req docgen.Request) (string, error)
	DownloadURL(path string) string
}

// DocGenTool implements doc_generate. On success it announces the file with a
// file_download event tagged with the run id found in ctx.
type DocGenTool struct {
	renderer DocumentRenderer
	events   events.Emitter
}

func NewDocGenTool(renderer DocumentRenderer, emitter events.Emitter) *DocGenTool {
	if emitter == nil {
		emitter = events.Discard
	}
	return &DocGenTool{renderer: renderer, events: emitter}
}

func (d *DocGenTool) Name() Name {
	return DocGenerate
}

func (d *DocGenTool) Description() string {
	return "Generate a document (pdf, docx, xlsx or pptx) from content blocks."
}

func (d *DocGenTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type": map[string]any{
				"type": "string",
				"enum": []string{"pdf", "docx", "xlsx", "pptx"},
			},
			"title": map[string]any{
				"type": "string",
			},
			"content": map[string]any{
				"type":        "array",
				"description": `Blocks such as {"h1":..}, {"h2":..}, {"p":..}, {"bullet":[..]}, {"table":[[..],[..]]}`,
			},
			"fields": map[string]any{
				"type":        "object",
				"description": "Field values rendered as a table when no content is given",
			},
		},
		"required": []string{"type", "title", "content"},
	}
}

// Example is the worked doc_generate call shown to the planner.
const DocGenExample = `{"step_id": 3, "title": "Draft the notice", "tool": "doc_generate", "input": {"type": "pdf", "title": "Legal Notice", "content": [{"h1": "Legal Notice"}, {"p": "..."}, {"bullet": ["point one", "point two"]}]}, "expectations": "a downloadable PDF"}`

func (d *DocGenTool) Invoke(ctx context.Context, input map[string]any) Result {
	req := docgen.Request{
		Type:  strings.ToLower(stringArg(input, "type")),
		Title: stringArg(input, "title"),
	}
	if req.Type == "" {
		req.Type = "pdf"
	}

	content, _ := input["content"].([]any)
	fields, _ := input["fields"].(map[string]any)
	switch {
	case len(content) > 0:
		req.Content = content
	case len(fields) > 0:
		req.Content = docgen.FieldsTable(fields)
	default:
		return Fail(fmt.Errorf("nothing to render: content and fields are empty"))
	}

	path, err := d.renderer.Render(ctx, req)
	if err != nil {
		return Fail(err)
	}

	filename := filepath.Base(path)
	d.events.Emit(events.New(events.RunIDFrom(ctx), events.FileDownload{
		Filename: filename,
		URL:      d.renderer.DownloadURL(path),
	}))
	return OK(path, fmt.Sprintf("generated %s", filename))
}

// HasMaterial reports whether a doc_generate input carries anything to
// render: non-empty content or non-empty fields.
func HasMaterial(input map[string]any) bool {
	if content, ok := input["content"].([]any); ok && len(content) > 0 {
		return true
	}
	if fields, ok := input["fields"].(map[string]any); ok && len(fields) > 0 {
		return true
	}
	return false
}
