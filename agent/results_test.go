package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGeneration(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		content := "```json\n" + `{
  "project_name": "todo_app",
  "description": "A todo app",
  "files": [{"path": "app.py", "content": "print('hi')", "language": "python"}],
  "technologies": ["Python"],
  "next_steps": ["Add tests"]
}` + "\n```"

		result, fallback := ParseGeneration(content, "simple todo app")
		assert.False(t, fallback)
		assert.Equal(t, "todo_app", result.ProjectName)
		require.Len(t, result.Files, 1)
		assert.Equal(t, "app.py", result.Files[0].Path)
	})

	t.Run("fills missing file fields", func(t *testing.T) {
		content := `{"project_name": "x", "files": [{"content": "data"}]}`
		result, fallback := ParseGeneration(content, "p")
		assert.False(t, fallback)
		assert.Equal(t, "unknown.txt", result.Files[0].Path)
		assert.Equal(t, "text", result.Files[0].Language)
	})

	t.Run("fills missing name and description", func(t *testing.T) {
		content := `{"files": [{"path": "a.py", "content": "x"}]}`
		result, fallback := ParseGeneration(content, "my prompt")
		assert.False(t, fallback)
		assert.True(t, strings.HasPrefix(result.ProjectName, "project_"))
		assert.Equal(t, "my prompt", result.Description)
	})

	// The fallback project must be identical for every kind of malformed
	// output: empty string, prose, and JSON without files.
	t.Run("deterministic fallback", func(t *testing.T) {
		for _, content := range []string{
			"",
			"I cannot generate that project.",
			`{"project_name": "x"}`,
			`{"project_name": "x", "files": []}`,
		} {
			result, fallback := ParseGeneration(content, "simple todo app")
			assert.True(t, fallback, "content %q", content)
			require.Len(t, result.Files, 2)
			assert.Equal(t, "README.md", result.Files[0].Path)
			assert.Equal(t, "main.py", result.Files[1].Path)
			assert.Equal(t, "simple todo app", result.Description)
			assert.Equal(t, []string{"Python"}, result.Technologies)
		}
	})
}

func TestParseTestReport(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		content := `{"tests_passed": 3, "tests_failed": 2, "errors": ["e1", "e2"], "warnings": []}`
		report, fallback := ParseTestReport(content, 5)
		assert.False(t, fallback)
		assert.Equal(t, 3, report.TestsPassed)
		assert.Equal(t, 2, report.TestsFailed)
		assert.Equal(t, []string{"e1", "e2"}, report.Errors)
	})

	t.Run("fallback reports zero failures", func(t *testing.T) {
		report, fallback := ParseTestReport("not json at all", 4)
		assert.True(t, fallback)
		assert.Equal(t, 4, report.TestsPassed)
		assert.Equal(t, 0, report.TestsFailed)
		assert.Empty(t, report.Errors)
	})
}

func TestParseFix(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		content := "```json\n{\"fixed_code\": \"print('fixed')\", \"explanation\": \"typo\"}\n```"
		fix, fallback := ParseFix(content)
		assert.False(t, fallback)
		assert.Equal(t, "print('fixed')", fix.FixedCode)
	})

	t.Run("empty fixed code is a skip", func(t *testing.T) {
		_, fallback := ParseFix(`{"fixed_code": "  ", "explanation": "nothing"}`)
		assert.True(t, fallback)
	})

	t.Run("malformed output is a skip", func(t *testing.T) {
		_, fallback := ParseFix("sorry, no JSON today")
		assert.True(t, fallback)
	})
}
