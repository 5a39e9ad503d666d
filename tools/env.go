package tools

import (
	"context"
	"io/fs"
	"os"
	"strings"
	"time"
)

// Environment abstracts the filesystem and process surface that tools run
// against. Implementations must be safe for concurrent use: the dispatcher
// runs non-destructive tools from several goroutines at once.
type Environment interface {
	// WorkingDir returns the directory relative paths resolve against.
	WorkingDir() string

	// Resolve expands a leading ~ and makes path absolute against WorkingDir.
	Resolve(path string) string

	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile creates missing parent directories before writing.
	WriteFile(ctx context.Context, path string, data []byte) error

	Stat(ctx context.Context, path string) (FileInfo, error)
	ListDir(ctx context.Context, path string) ([]DirEntry, error)

	// Glob walks dir recursively and returns entries matching pattern,
	// relative to dir and sorted. Pattern segments support * ? and **;
	// wildcards do not match names starting with a dot.
	Glob(ctx context.Context, dir, pattern string) ([]GlobMatch, error)

	// Grep searches file contents under path (or a single file) for a
	// regular expression and returns matching lines.
	Grep(ctx context.Context, pattern, path string, opts GrepOptions) ([]GrepMatch, error)

	// Exec runs command through the system shell in dir (WorkingDir when
	// empty). On timeout the whole process group is killed and the result
	// has TimedOut set.
	Exec(ctx context.Context, command, dir string, timeout time.Duration) (*ExecResult, error)
}

// FileInfo is the subset of stat data tools report.
type FileInfo struct {
	Path    string
	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
	IsDir   bool
}

// DirEntry is a single directory listing entry.
type DirEntry struct {
	Name  string
	IsDir bool
	Size  int64
}

// GlobMatch is a single pattern match, relative to the search root.
type GlobMatch struct {
	Path  string
	IsDir bool
}

// GrepOptions controls content search behavior.
type GrepOptions struct {
	// GlobFilter restricts the search to files whose base name matches
	// the pattern (for example "*.go"). Empty means all files.
	GlobFilter      string
	CaseInsensitive bool
	// MaxResults stops the search once this many matches are collected.
	// Zero means unlimited.
	MaxResults int
}

// GrepMatch is one matching line, with Path relative to the search root.
type GrepMatch struct {
	Path string
	Line int
	Text string
}

// ExecResult captures the outcome of a shell command.
type ExecResult struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	TimedOut   bool
	DurationMs int64
}

// sensitiveEnvPatterns are case-insensitive suffixes for environment
// variables that are withheld from child processes.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always passed through regardless of filtering.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "LC_ALL": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

// filterEnvironment returns the process environment with credential-like
// variables removed.
func filterEnvironment() []string {
	var filtered []string
	for _, env := range os.Environ() {
		name, _, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}
