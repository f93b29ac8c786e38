package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
)

// maxReadBytes bounds what read_file hands back to the planner.
const maxReadBytes = 1 << 20

// FilesystemTool implements read_file over a workspace root. Paths that
// escape the root are rejected.
type FilesystemTool struct {
	Root string
}

func NewFilesystemTool(root string) *FilesystemTool {
	absRoot, _ := filepath.Abs(root)
	return &FilesystemTool{Root: absRoot}
}

func (f *FilesystemTool) Name() Name {
	return ReadFile
}

func (f *FilesystemTool) Description() string {
	return "Read a local text or PDF file from the workspace."
}

func (f *FilesystemTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path of the file, relative to the workspace",
			},
		},
		"required": []string{"path"},
	}
}

func (f *FilesystemTool) Invoke(ctx context.Context, input map[string]any) Result {
	name := strings.TrimSpace(stringArg(input, "path"))
	if name == "" {
		return Fail(fmt.Errorf("missing path"))
	}

	targetPath, err := f.resolve(name)
	if err != nil {
		return Fail(err)
	}

	if strings.EqualFold(filepath.Ext(targetPath), ".pdf") {
		return f.readPDF(ctx, targetPath)
	}

	data, err := os.ReadFile(targetPath)
	if err != nil {
		return Fail(fmt.Errorf("failed to read file: %w", err))
	}
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
	}
	txt := strings.ToValidUTF8(string(data), "")
	return OK(txt, fmt.Sprintf("read %d chars", len([]rune(txt))))
}

func (f *FilesystemTool) resolve(name string) (string, error) {
	targetPath := name
	if !filepath.IsAbs(targetPath) {
		targetPath = filepath.Join(f.Root, name)
	}
	targetPath = filepath.Clean(targetPath)

	// Safety check: ensure targetPath is within f.Root
	rel, err := filepath.Rel(f.Root, targetPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("unsafe path attempt: %s", name)
	}
	return targetPath, nil
}

func (f *FilesystemTool) readPDF(ctx context.Context, path string) Result {
	file, err := os.Open(path)
	if err != nil {
		return Fail(fmt.Errorf("failed to read file: %w", err))
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Fail(err)
	}
	docs, err := documentloaders.NewPDF(file, info.Size()).Load(ctx)
	if err != nil {
		return Fail(fmt.Errorf("failed to parse pdf: %w", err))
	}

	pages := make([]string, 0, len(docs))
	for _, d := range docs {
		pages = append(pages, d.PageContent)
	}
	txt := strings.Join(pages, "\n")
	return OK(txt, fmt.Sprintf("read %d chars from %d pages", len([]rune(txt)), len(docs)))
}
