package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultCommandTimeout bounds run_command when the call passes none.
	DefaultCommandTimeout = 30 * time.Second

	maxReadChars     = 100_000
	maxSearchResults = 200
	maxGrepResults   = 200
)

// BuiltinOptions configures the builtin tool set.
type BuiltinOptions struct {
	// CommandTimeout is the default run_command timeout. Zero means
	// DefaultCommandTimeout.
	CommandTimeout time.Duration
}

// NewBuiltinRegistry returns a registry holding the standard tool set.
// run_command, write_file and edit_file are destructive; everything else
// runs without confirmation.
func NewBuiltinRegistry(opts BuiltinOptions) *Registry {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	r := NewRegistry()
	r.Register(runCommandTool(opts.CommandTimeout))
	r.Register(readFileTool())
	r.Register(writeFileTool())
	r.Register(editFileTool())
	r.Register(listDirectoryTool())
	r.Register(searchFilesTool())
	r.Register(grepTool())
	r.Register(getFileInfoTool())
	return r
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func runCommandTool(defaultTimeout time.Duration) *Tool {
	return &Tool{
		Name: "run_command",
		Description: "Run a shell command and return its stdout and stderr. " +
			"Use commands that match the host OS.",
		Parameters: objectSchema(map[string]any{
			"command": prop("string", "Command line to execute"),
			"cwd":     prop("string", "Directory to run in (defaults to the working directory)"),
			"timeout": prop("integer", "Timeout in seconds (defaults to the configured value)"),
		}, "command"),
		Destructive: true,
		Handler: func(ctx context.Context, args map[string]any, env Environment) (string, error) {
			var a struct {
				Command string `json:"command"`
				Cwd     string `json:"cwd"`
				Timeout int    `json:"timeout"`
			}
			if err := DecodeArgs(args, &a); err != nil {
				return "", err
			}
			if a.Command == "" {
				return "", errors.New("command is required")
			}
			timeout := defaultTimeout
			if a.Timeout > 0 {
				timeout = time.Duration(a.Timeout) * time.Second
			}
			res, err := env.Exec(ctx, a.Command, a.Cwd, timeout)
			if err != nil {
				return "", err
			}
			if res.TimedOut {
				return "", fmt.Errorf("command timed out after %s", timeout)
			}
			var parts []string
			if res.Stdout != "" {
				parts = append(parts, res.Stdout)
			}
			if res.Stderr != "" {
				parts = append(parts, "[stderr]\n"+res.Stderr)
			}
			parts = append(parts, fmt.Sprintf("[exit code: %d]", res.ExitCode))
			return strings.Join(parts, "\n"), nil
		},
		Preview: func(args map[string]any, env Environment) string {
			var a struct {
				Command string `json:"command"`
				Cwd     string `json:"cwd"`
			}
			if err := DecodeArgs(args, &a); err != nil || a.Command == "" {
				return "run_command"
			}
			if a.Cwd != "" {
				return fmt.Sprintf("$ %s  (in %s)", a.Command, a.Cwd)
			}
			return "$ " + a.Command
		},
	}
}

func readFileTool() *Tool {
	return &Tool{
		Name: "read_file",
		Description: "Read a file and return its contents. Text files only; " +
			"binary files produce an error.",
		Parameters: objectSchema(map[string]any{
			"path":   prop("string", "File path to read (~ allowed)"),
			"offset": prop("integer", "Line number to start from, 0-based (default 0)"),
			"limit":  prop("integer", "Maximum number of lines to read (default: all)"),
		}, "path"),
		Handler: func(ctx context.Context, args map[string]any, env Environment) (string, error) {
			var a struct {
				Path   string `json:"path"`
				Offset int    `json:"offset"`
				Limit  int    `json:"limit"`
			}
			if err := DecodeArgs(args, &a); err != nil {
				return "", err
			}
			if a.Path == "" {
				return "", errors.New("path is required")
			}
			data, err := env.ReadFile(ctx, a.Path)
			if err != nil {
				return "", err
			}
			resolved := env.Resolve(a.Path)
			if isBinary(data) {
				return "", fmt.Errorf("cannot read binary file: %s", resolved)
			}

			lines := splitKeepEnds(string(data))
			total := len(lines)
			offset := a.Offset
			if offset < 0 {
				offset = 0
			}
			if offset > total {
				offset = total
			}
			selected := lines[offset:]
			if a.Limit > 0 && a.Limit < len(selected) {
				selected = selected[:a.Limit]
			}

			content := strings.Join(selected, "")
			if n := len(content); n > maxReadChars {
				content = content[:maxReadChars] +
					fmt.Sprintf("\n\n[...truncated, total %d chars]", n)
			}

			header := fmt.Sprintf("[%s] (%d lines total", resolved, total)
			if offset > 0 || a.Limit > 0 {
				header += fmt.Sprintf(", showing lines %d-%d", offset+1, offset+len(selected))
			}
			header += ")\n"
			return header + content, nil
		},
	}
}

func writeFileTool() *Tool {
	return &Tool{
		Name: "write_file",
		Description: "Write a file at the given path, replacing any existing content. " +
			"Missing parent directories are created. " +
			"Use edit_file for partial changes to an existing file.",
		Parameters: objectSchema(map[string]any{
			"path":    prop("string", "Destination file path (~ allowed)"),
			"content": prop("string", "Content to write"),
		}, "path", "content"),
		Destructive: true,
		Handler: func(ctx context.Context, args map[string]any, env Environment) (string, error) {
			var a struct {
				Path    string `json:"path"`
				Content string `json:"content"`
			}
			if err := DecodeArgs(args, &a); err != nil {
				return "", err
			}
			if a.Path == "" {
				return "", errors.New("path is required")
			}
			if err := env.WriteFile(ctx, a.Path, []byte(a.Content)); err != nil {
				return "", err
			}
			return fmt.Sprintf("Wrote file: %s (%d chars)", env.Resolve(a.Path), len(a.Content)), nil
		},
		Preview: func(args map[string]any, env Environment) string {
			var a struct {
				Path    string `json:"path"`
				Content string `json:"content"`
			}
			if err := DecodeArgs(args, &a); err != nil || a.Path == "" {
				return "write_file"
			}
			return fmt.Sprintf("write %s (%d chars)", a.Path, len(a.Content))
		},
	}
}

func editFileTool() *Tool {
	return &Tool{
		Name: "edit_file",
		Description: "Replace part of an existing file: old_string is swapped for new_string. " +
			"old_string must appear exactly once in the file.",
		Parameters: objectSchema(map[string]any{
			"path":       prop("string", "File path to edit (~ allowed)"),
			"old_string": prop("string", "Text to replace; must be unique within the file"),
			"new_string": prop("string", "Replacement text"),
		}, "path", "old_string", "new_string"),
		Destructive: true,
		Handler: func(ctx context.Context, args map[string]any, env Environment) (string, error) {
			var a struct {
				Path      string `json:"path"`
				OldString string `json:"old_string"`
				NewString string `json:"new_string"`
			}
			if err := DecodeArgs(args, &a); err != nil {
				return "", err
			}
			if a.Path == "" {
				return "", errors.New("path is required")
			}
			if a.OldString == "" {
				return "", errors.New("old_string must not be empty")
			}
			data, err := env.ReadFile(ctx, a.Path)
			if err != nil {
				return "", err
			}
			resolved := env.Resolve(a.Path)
			content := string(data)

			count := strings.Count(content, a.OldString)
			if count == 0 {
				return "", fmt.Errorf("old_string not found in %s", resolved)
			}
			if count > 1 {
				return "", fmt.Errorf("old_string appears %d times in %s; provide a longer unique string", count, resolved)
			}

			updated := strings.Replace(content, a.OldString, a.NewString, 1)
			if err := env.WriteFile(ctx, a.Path, []byte(updated)); err != nil {
				return "", err
			}
			diff := UnifiedDiff(content, updated, filepath.Base(resolved))
			return fmt.Sprintf("Edited file: %s\n%s", resolved, diff), nil
		},
		Preview: func(args map[string]any, env Environment) string {
			var a struct {
				Path      string `json:"path"`
				OldString string `json:"old_string"`
				NewString string `json:"new_string"`
			}
			if err := DecodeArgs(args, &a); err != nil || a.Path == "" {
				return "edit_file"
			}
			data, err := env.ReadFile(context.Background(), a.Path)
			if err != nil {
				return "edit " + a.Path
			}
			content := string(data)
			if a.OldString == "" || strings.Count(content, a.OldString) != 1 {
				return "edit " + a.Path
			}
			updated := strings.Replace(content, a.OldString, a.NewString, 1)
			return UnifiedDiff(content, updated, filepath.Base(env.Resolve(a.Path)))
		},
	}
}

func listDirectoryTool() *Tool {
	return &Tool{
		Name:        "list_directory",
		Description: "List the files and folders in a directory.",
		Parameters: objectSchema(map[string]any{
			"path":        prop("string", "Directory to list (defaults to the working directory, ~ allowed)"),
			"show_hidden": prop("boolean", "Include entries starting with a dot (default false)"),
		}),
		Handler: func(ctx context.Context, args map[string]any, env Environment) (string, error) {
			var a struct {
				Path       string `json:"path"`
				ShowHidden bool   `json:"show_hidden"`
			}
			if err := DecodeArgs(args, &a); err != nil {
				return "", err
			}
			entries, err := env.ListDir(ctx, a.Path)
			if err != nil {
				return "", err
			}
			if !a.ShowHidden {
				visible := entries[:0]
				for _, e := range entries {
					if !strings.HasPrefix(e.Name, ".") {
						visible = append(visible, e)
					}
				}
				entries = visible
			}
			sort.Slice(entries, func(i, j int) bool {
				return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
			})

			resolved := env.WorkingDir()
			if a.Path != "" {
				resolved = env.Resolve(a.Path)
			}
			lines := make([]string, 0, len(entries))
			for _, e := range entries {
				if e.IsDir {
					lines = append(lines, "  [DIR]  "+e.Name)
				} else {
					lines = append(lines, fmt.Sprintf("  [FILE] %s  (%s)", e.Name, humanSize(e.Size)))
				}
			}
			header := fmt.Sprintf("Directory: %s  (%d items)\n", resolved, len(entries))
			if len(lines) == 0 {
				return header + "  (empty)", nil
			}
			return header + strings.Join(lines, "\n"), nil
		},
	}
}

func searchFilesTool() *Tool {
	return &Tool{
		Name:        "search_files",
		Description: "Recursively find files under a directory matching a glob pattern.",
		Parameters: objectSchema(map[string]any{
			"pattern": prop("string", "Glob pattern to match (for example '**/*.go', '*.md')"),
			"path":    prop("string", "Directory to search from (defaults to the working directory, ~ allowed)"),
		}, "pattern"),
		Handler: func(ctx context.Context, args map[string]any, env Environment) (string, error) {
			var a struct {
				Pattern string `json:"pattern"`
				Path    string `json:"path"`
			}
			if err := DecodeArgs(args, &a); err != nil {
				return "", err
			}
			if a.Pattern == "" {
				return "", errors.New("pattern is required")
			}
			matches, err := env.Glob(ctx, a.Path, a.Pattern)
			if err != nil {
				return "", err
			}
			base := env.WorkingDir()
			if a.Path != "" {
				base = env.Resolve(a.Path)
			}
			if len(matches) == 0 {
				return fmt.Sprintf("No files match pattern '%s' (searched in %s)", a.Pattern, base), nil
			}

			lines := []string{fmt.Sprintf("Found %d matches (pattern: %s, in: %s)\n", len(matches), a.Pattern, base)}
			shown := matches
			if len(shown) > maxSearchResults {
				shown = shown[:maxSearchResults]
			}
			for _, m := range shown {
				if m.IsDir {
					lines = append(lines, "  [DIR]  "+m.Path)
				} else {
					lines = append(lines, "  [FILE] "+m.Path)
				}
			}
			if len(matches) > maxSearchResults {
				lines = append(lines, fmt.Sprintf("\n  ... and %d more", len(matches)-maxSearchResults))
			}
			return strings.Join(lines, "\n"), nil
		},
	}
}

func grepTool() *Tool {
	return &Tool{
		Name: "grep",
		Description: "Search file contents with a regular expression, recursively, " +
			"returning matching lines with file name and line number.",
		Parameters: objectSchema(map[string]any{
			"pattern":     prop("string", "Regular expression to search for"),
			"path":        prop("string", "File or directory to search (defaults to the working directory, ~ allowed)"),
			"include":     prop("string", "Glob filter on file names (for example '*.go'); all files when omitted"),
			"ignore_case": prop("boolean", "Case-insensitive matching (default false)"),
		}, "pattern"),
		Handler: func(ctx context.Context, args map[string]any, env Environment) (string, error) {
			var a struct {
				Pattern    string `json:"pattern"`
				Path       string `json:"path"`
				Include    string `json:"include"`
				IgnoreCase bool   `json:"ignore_case"`
			}
			if err := DecodeArgs(args, &a); err != nil {
				return "", err
			}
			if a.Pattern == "" {
				return "", errors.New("pattern is required")
			}
			matches, err := env.Grep(ctx, a.Pattern, a.Path, GrepOptions{
				GlobFilter:      a.Include,
				CaseInsensitive: a.IgnoreCase,
				MaxResults:      maxGrepResults,
			})
			if err != nil {
				return "", err
			}
			base := env.WorkingDir()
			if a.Path != "" {
				base = env.Resolve(a.Path)
			}
			if len(matches) == 0 {
				return fmt.Sprintf("No lines match pattern '%s' (searched in %s)", a.Pattern, base), nil
			}

			header := fmt.Sprintf("grep: %d matching lines", len(matches))
			if len(matches) >= maxGrepResults {
				header += fmt.Sprintf(" (result limit %d reached)", maxGrepResults)
			}
			header += fmt.Sprintf(" (pattern: %s, in: %s)\n", a.Pattern, base)

			lines := make([]string, 0, len(matches))
			for _, m := range matches {
				lines = append(lines, fmt.Sprintf("  %s:%d: %s", m.Path, m.Line, m.Text))
			}
			return header + strings.Join(lines, "\n"), nil
		},
	}
}

type fileInfoOut struct {
	Path      string `json:"path"`
	Type      string `json:"type"`
	Size      string `json:"size"`
	SizeBytes int64  `json:"size_bytes"`
	Modified  string `json:"modified"`
	Mode      string `json:"mode"`
	Extension string `json:"extension,omitempty"`
}

func getFileInfoTool() *Tool {
	return &Tool{
		Name:        "get_file_info",
		Description: "Return metadata for a file or directory (size, modification time, type).",
		Parameters: objectSchema(map[string]any{
			"path": prop("string", "File or directory path (~ allowed)"),
		}, "path"),
		Handler: func(ctx context.Context, args map[string]any, env Environment) (string, error) {
			var a struct {
				Path string `json:"path"`
			}
			if err := DecodeArgs(args, &a); err != nil {
				return "", err
			}
			if a.Path == "" {
				return "", errors.New("path is required")
			}
			info, err := env.Stat(ctx, a.Path)
			if err != nil {
				return "", err
			}
			out := fileInfoOut{
				Path:      info.Path,
				Type:      "file",
				Size:      humanSize(info.Size),
				SizeBytes: info.Size,
				Modified:  info.ModTime.Format(time.RFC3339),
				Mode:      info.Mode.String(),
			}
			if info.IsDir {
				out.Type = "directory"
			} else {
				out.Extension = filepath.Ext(info.Path)
				if out.Extension == "" {
					out.Extension = "(none)"
				}
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	}
}

// splitKeepEnds splits on newlines keeping them attached, so joining the
// slices reproduces the input exactly.
func splitKeepEnds(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// humanSize formats a byte count with a binary unit suffix.
func humanSize(size int64) string {
	if size < 1024 {
		return fmt.Sprintf("%d B", size)
	}
	v := float64(size)
	for _, unit := range []string{"KB", "MB", "GB", "TB"} {
		v /= 1024
		if v < 1024 {
			return fmt.Sprintf("%.1f %s", v, unit)
		}
	}
	return fmt.Sprintf("%.1f PB", v/1024)
}
