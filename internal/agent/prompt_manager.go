package agent

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Role prompt files. Each overrides a built-in default when present.
const (
	plannerFile   = "planner.md"
	evaluatorFile = "evaluator.md"
	fieldsFile    = "fields.md"
)

const (
	defaultPlannerPrompt = "You are LexiGPT's planner. Produce concise, correct JSON plans using only the available tools. " +
		"Return valid JSON only."
	defaultEvaluatorPrompt = "You are LexiGPT's strict evaluator. Given a plan and execution logs, answer with JSON: " +
		`{"success": bool, "summary": str, "sources": [str]}`
	defaultFieldsPrompt = "You are LexiGPT's drafting assistant. Given a document request, list the field names the user " +
		`must supply before it can be drafted. Answer with JSON only: {"fields": ["field_name", ...]}`
)

// PromptManager loads system prompts from a directory of markdown files.
type PromptManager struct {
	Directory string
	logger    *slog.Logger
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir, logger: slog.Default()}
}

func (pm *PromptManager) PlannerPrompt() string {
	return pm.load(plannerFile, defaultPlannerPrompt)
}

func (pm *PromptManager) EvaluatorPrompt() string {
	return pm.load(evaluatorFile, defaultEvaluatorPrompt)
}

func (pm *PromptManager) FieldsPrompt() string {
	return pm.load(fieldsFile, defaultFieldsPrompt)
}

func (pm *PromptManager) load(name, fallback string) string {
	if pm == nil || pm.Directory == "" {
		return fallback
	}
	data, err := os.ReadFile(filepath.Join(pm.Directory, name))
	if err != nil {
		if !os.IsNotExist(err) {
			pm.logger.Warn("failed to read prompt file", "file", name, "error", err)
		}
		return fallback
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return fallback
}

// PersonaPrompt joins the remaining markdown files into the chat assistant's
// system prompt: identity.md, soul.md, guidelines.md, then the rest by name.
// It returns fallback when the directory holds none.
func (pm *PromptManager) PersonaPrompt(fallback string) string {
	if pm == nil || pm.Directory == "" {
		return fallback
	}
	files, err := os.ReadDir(pm.Directory)
	if err != nil {
		return fallback
	}

	order := map[string]int{
		"identity.md":   1,
		"soul.md":       2,
		"guidelines.md": 3,
		"user.md":       4,
	}
	roles := map[string]bool{plannerFile: true, evaluatorFile: true, fieldsFile: true}

	sort.Slice(files, func(i, j int) bool {
		oi, okI := order[files[i].Name()]
		oj, okJ := order[files[j].Name()]
		if okI && okJ {
			return oi < oj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return files[i].Name() < files[j].Name()
	})

	var contents []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") || roles[f.Name()] {
			continue
		}
		path := filepath.Join(pm.Directory, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			pm.logger.Warn("failed to read prompt file", "file", path, "error", err)
			continue
		}
		contents = append(contents, string(data))
	}

	if len(contents) == 0 {
		return fallback
	}
	return strings.Join(contents, "\n\n---\n\n")
}
