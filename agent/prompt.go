package agent

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/modoki-agent/modoki/skills"
)

// PromptInfo carries everything BuildSystemPrompt folds into the system
// message.
type PromptInfo struct {
	Model      string
	WorkingDir string
	// Skills, when non-empty, adds an inventory the model can run via
	// the run_skill tool.
	Skills []skills.Skill
	// ProjectContext is an optional pre-collected description of the
	// project (git state, directory tree), appended verbatim.
	ProjectContext string
}

// BuildSystemPrompt renders the system message: role, environment block,
// operating principles, rules, skill inventory, and project context.
func BuildSystemPrompt(info PromptInfo) string {
	var b strings.Builder

	b.WriteString(`You are a general-purpose assistant agent running on the user's local machine.
Follow the user's instructions, using the provided tools to read and write
files, list directories, search file contents, and run shell commands.

## Environment
`)
	fmt.Fprintf(&b, "- OS: %s (%s)\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "- Working directory: %s\n", info.WorkingDir)
	if home, err := os.UserHomeDir(); err == nil {
		fmt.Fprintf(&b, "- Home directory: %s\n", home)
	}
	if info.Model != "" {
		fmt.Fprintf(&b, "- Model: %s\n", info.Model)
	}

	b.WriteString(`
## Operating principles
1. **Investigate before acting**: read the current contents with read_file or grep before editing a file.
2. **Work in small steps**: break large tasks down and check the result of each step before moving on.
3. **Retry on errors**: when a tool call fails, analyze the cause and try a different approach. Attempt to resolve it yourself at least twice before asking the user.
4. **Use the context**: understand the project layout, existing code patterns, and the frameworks in use before making changes.
5. **Keep changes minimal**: prefer targeted edit_file changes; use write_file for full rewrites only when creating new files.
6. **Verify, then report**: after writing a file, read it back to confirm the change; after running a command, check the exit code.

## Rules
- Expand ~ in file paths before using them.
- Base your answers on actual tool results.
- When an error occurs, explain the cause and how to address it.
- On Windows use cmd.exe/PowerShell command syntax; on macOS and Linux use bash/zsh syntax.
- Use the grep tool to search file contents.
`)

	if len(info.Skills) > 0 {
		b.WriteString("\n## Available skills\n")
		b.WriteString("The following skills are available. Run one with the run_skill tool when it fits the task.\n\n")
		for _, s := range info.Skills {
			fmt.Fprintf(&b, "- **%s**: %s\n", s.Name, s.Description)
		}
	}

	if info.ProjectContext != "" {
		b.WriteString("\n")
		b.WriteString(info.ProjectContext)
		b.WriteString("\n")
	}

	return b.String()
}
