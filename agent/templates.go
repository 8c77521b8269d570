// Package agent holds the prompt templates and typed result payloads for the
// generation, testing, and repair agents. Template content is data, not
// logic: each template is a format string with named {placeholder} fields
// substituted before the prompt is sent to the model.
package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Agent names. These double as the `agent` field on log entries.
const (
	System    = "system"
	Generator = "generator"
	Tester    = "tester"
	Fixer     = "fixer"
	Optimizer = "optimizer"
	Docs      = "docs"
	Deploy    = "deploy"
)

// SystemPrompt is the shared system message for all agent calls.
const SystemPrompt = "You are an AI agent that helps generate code and projects."

// defaultTemplates holds the built-in prompt templates.
var defaultTemplates = map[string]string{
	Generator: `You are the project generation agent. Your task is to create a project structure from the user's description.

User prompt: {prompt}

Your tasks:
1. Analyze the requirements
2. Create the list of required files
3. Determine technologies and libraries
4. Generate the base project structure

Return JSON with the following structure:
{
  "project_name": "project name",
  "description": "project description",
  "files": [
    {"path": "path/to/file", "content": "file content", "language": "language"}
  ],
  "technologies": ["list of technologies"],
  "next_steps": ["next steps"]
}`,

	Tester: `You are the testing agent. Your task is to check the project for errors.

Project files:
{files}

Your tasks:
1. Check code syntax
2. Find potential errors
3. Check dependencies
4. Produce a test report

Return JSON:
{
  "tests_passed": count,
  "tests_failed": count,
  "errors": ["list of errors"],
  "warnings": ["warnings"],
  "suggestions": ["recommendations"]
}`,

	Fixer: `You are the error fixing agent. Your task is to repair the reported error in the given file.

File: {file_path}
Error: {error}

Current code:
{code}

Your tasks:
1. Locate the cause of the error
2. Fix it with the smallest change that works
3. Keep the rest of the file intact

Return JSON:
{
  "fixed_code": "the complete fixed file content",
  "explanation": "what was changed and why",
  "additional_fixes": ["other problems worth fixing"]
}`,

	Optimizer: `You are the code optimization agent. Your task is to improve code quality.

Code to optimize:
{code}

Your tasks:
1. Find inefficient sections
2. Suggest improvements
3. Optimize performance
4. Improve readability

Return JSON:
{
  "optimized_code": "optimized code",
  "improvements": ["list of improvements"],
  "performance_gain": "estimated improvement"
}`,

	Docs: `You are the documentation agent. Your task is to create a README and documentation.

Project:
{project_info}

Files:
{files}

Your tasks:
1. Create README.md
2. Describe installation
3. Describe usage
4. Add examples

Return JSON:
{
  "readme": "README.md content",
  "additional_docs": [{"filename": "name", "content": "content"}]
}`,
}

// DefaultTemplates returns a copy of the built-in templates.
func DefaultTemplates() map[string]string {
	out := make(map[string]string, len(defaultTemplates))
	for name, tmpl := range defaultTemplates {
		out[name] = tmpl
	}
	return out
}

// Render substitutes named {placeholder} fields in a template.
// Unknown placeholders are left as-is so a malformed override degrades to a
// visible artifact in the prompt instead of an error.
func Render(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}

	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// FilesPromptSection formats a file sample for the tester prompt.
// Each entry lists path, language, and content truncated to at most
// maxContent bytes, cut on a rune boundary so the prompt stays valid UTF-8.
func FilesPromptSection(files []PromptFile, maxContent int) string {
	var sb strings.Builder
	for _, f := range files {
		content := f.Content
		if maxContent > 0 && len(content) > maxContent {
			cut := maxContent
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut] + "..."
		}
		fmt.Fprintf(&sb, "File: %s\nLanguage: %s\nContent:\n%s\n\n", f.Path, f.Language, content)
	}
	return sb.String()
}

// PromptFile is the slice of a stored file that agents see.
type PromptFile struct {
	Path     string
	Language string
	Content  string
}
