package agent

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wrx861/agentai/llm"
)

// GeneratedFile is one file in a generation result.
type GeneratedFile struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// GenerationResult is the typed payload expected from the generator agent.
type GenerationResult struct {
	ProjectName  string          `json:"project_name"`
	Description  string          `json:"description"`
	Files        []GeneratedFile `json:"files"`
	Technologies []string        `json:"technologies"`
	NextSteps    []string        `json:"next_steps"`
}

// TestReport is the typed payload expected from the tester agent.
type TestReport struct {
	TestsPassed int      `json:"tests_passed"`
	TestsFailed int      `json:"tests_failed"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
}

// FixResult is the typed payload expected from the fixer agent.
type FixResult struct {
	FixedCode       string   `json:"fixed_code"`
	Explanation     string   `json:"explanation"`
	AdditionalFixes []string `json:"additional_fixes"`
}

// ParseGeneration decodes generator output. On any parse failure, or when the
// payload carries no files, it returns the deterministic two-file default
// project and fromFallback=true. Malformed model output degrades to a safe
// default; it never aborts the run.
func ParseGeneration(content, prompt string) (GenerationResult, bool) {
	var result GenerationResult
	if err := llm.DecodeJSON(content, &result); err != nil {
		return FallbackGeneration(prompt), true
	}
	if len(result.Files) == 0 {
		return FallbackGeneration(prompt), true
	}

	if result.ProjectName == "" {
		result.ProjectName = generatedProjectName()
	}
	if result.Description == "" {
		result.Description = prompt
	}
	for i := range result.Files {
		if result.Files[i].Path == "" {
			result.Files[i].Path = "unknown.txt"
		}
		if result.Files[i].Language == "" {
			result.Files[i].Language = "text"
		}
	}
	return result, false
}

// ParseTestReport decodes tester output. fileCount feeds the zero-failure
// fallback used when the output is unparseable.
func ParseTestReport(content string, fileCount int) (TestReport, bool) {
	var report TestReport
	if err := llm.DecodeJSON(content, &report); err != nil {
		return FallbackTestReport(fileCount), true
	}
	return report, false
}

// ParseFix decodes fixer output. An unparseable payload or empty fixed code
// returns fromFallback=true, which callers treat as "skip this fix".
func ParseFix(content string) (FixResult, bool) {
	var fix FixResult
	if err := llm.DecodeJSON(content, &fix); err != nil {
		return FixResult{}, true
	}
	if strings.TrimSpace(fix.FixedCode) == "" {
		return FixResult{}, true
	}
	return fix, false
}

// FallbackGeneration returns the deterministic default project used when the
// generator's output cannot be parsed: a README plus a placeholder main file.
func FallbackGeneration(prompt string) GenerationResult {
	return GenerationResult{
		ProjectName: generatedProjectName(),
		Description: prompt,
		Files: []GeneratedFile{
			{
				Path:     "README.md",
				Content:  fmt.Sprintf("# %s\n\nProject generated automatically.", prompt),
				Language: "markdown",
			},
			{
				Path:     "main.py",
				Content:  "# Main module\nprint('Hello, World!')",
				Language: "python",
			},
		},
		Technologies: []string{"Python"},
		NextSteps:    []string{"Implement core functionality"},
	}
}

// FallbackTestReport returns the zero-failure report used when the tester's
// output cannot be parsed.
func FallbackTestReport(fileCount int) TestReport {
	return TestReport{
		TestsPassed: fileCount,
		TestsFailed: 0,
		Errors:      []string{},
		Warnings:    []string{"Automated review completed"},
	}
}

func generatedProjectName() string {
	return "project_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
