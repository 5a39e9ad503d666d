package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"
)

// Local runs tools directly on the local machine.
type Local struct {
	workingDir string
}

// NewLocal creates a local environment rooted at workingDir. An empty
// workingDir defaults to the current directory.
func NewLocal(workingDir string) *Local {
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}
	return &Local{workingDir: workingDir}
}

func (l *Local) WorkingDir() string {
	return l.workingDir
}

func (l *Local) Resolve(p string) string {
	if p == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[2:])
		}
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(l.workingDir, p)
}

func (l *Local) ReadFile(ctx context.Context, p string) ([]byte, error) {
	return os.ReadFile(l.Resolve(p))
}

func (l *Local) WriteFile(ctx context.Context, p string, data []byte) error {
	resolved := l.Resolve(p)
	if dir := filepath.Dir(resolved); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(resolved, data, 0644)
}

func (l *Local) Stat(ctx context.Context, p string) (FileInfo, error) {
	resolved := l.Resolve(p)
	info, err := os.Stat(resolved)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Path:    resolved,
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}, nil
}

func (l *Local) ListDir(ctx context.Context, p string) ([]DirEntry, error) {
	resolved := l.workingDir
	if p != "" {
		resolved = l.Resolve(p)
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, err
	}
	result := make([]DirEntry, 0, len(entries))
	for _, entry := range entries {
		de := DirEntry{Name: entry.Name(), IsDir: entry.IsDir()}
		if info, err := entry.Info(); err == nil {
			de.Size = info.Size()
		}
		result = append(result, de)
	}
	return result, nil
}

// skipDirs are never descended into during recursive searches.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"vendor":       true,
	".cache":       true,
}

func (l *Local) Glob(ctx context.Context, dir, pattern string) ([]GlobMatch, error) {
	base := l.workingDir
	if dir != "" {
		base = l.Resolve(dir)
	}
	if _, err := os.Stat(base); err != nil {
		return nil, err
	}

	var matches []GlobMatch
	err := filepath.WalkDir(base, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if p == base {
			return nil
		}
		if d.IsDir() && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return nil
		}
		ok, merr := matchGlob(pattern, filepath.ToSlash(rel))
		if merr != nil {
			return merr
		}
		if ok {
			matches = append(matches, GlobMatch{Path: rel, IsDir: d.IsDir()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Path < matches[j].Path })
	return matches, nil
}

// matchGlob reports whether rel (slash-separated, relative) matches pattern.
// A ** segment matches any number of directories. Wildcards never match
// names starting with a dot; a dot-prefixed pattern segment is required to
// match hidden entries.
func matchGlob(pattern, rel string) (bool, error) {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(rel, "/"))
}

func matchSegments(pat, name []string) (bool, error) {
	for len(pat) > 0 {
		if pat[0] == "**" {
			if ok, err := matchSegments(pat[1:], name); err != nil || ok {
				return ok, err
			}
			if len(name) == 0 || strings.HasPrefix(name[0], ".") {
				return false, nil
			}
			name = name[1:]
			continue
		}
		if len(name) == 0 {
			return false, nil
		}
		if strings.HasPrefix(name[0], ".") && !strings.HasPrefix(pat[0], ".") {
			return false, nil
		}
		ok, err := path.Match(pat[0], name[0])
		if err != nil || !ok {
			return false, err
		}
		pat, name = pat[1:], name[1:]
	}
	return len(name) == 0, nil
}

var errStopWalk = errors.New("stop walk")

func (l *Local) Grep(ctx context.Context, pattern, p string, opts GrepOptions) ([]GrepMatch, error) {
	base := l.workingDir
	if p != "" {
		base = l.Resolve(p)
	}

	prefix := ""
	if opts.CaseInsensitive {
		prefix = "(?i)"
	}
	re, err := regexp.Compile(prefix + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regular expression: %w", err)
	}

	info, err := os.Stat(base)
	if err != nil {
		return nil, err
	}

	var matches []GrepMatch
	scan := func(fp, rel string) bool {
		data, err := os.ReadFile(fp)
		if err != nil {
			return true
		}
		if isBinary(data) {
			return true
		}
		lines := strings.Split(string(data), "\n")
		if n := len(lines); n > 0 && lines[n-1] == "" {
			lines = lines[:n-1]
		}
		for i, line := range lines {
			if opts.MaxResults > 0 && len(matches) >= opts.MaxResults {
				return false
			}
			if re.MatchString(line) {
				matches = append(matches, GrepMatch{
					Path: rel,
					Line: i + 1,
					Text: strings.TrimRight(line, " \t\r"),
				})
			}
		}
		return true
	}

	if !info.IsDir() {
		scan(base, filepath.Base(base))
		return matches, nil
	}

	err = filepath.WalkDir(base, func(fp string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			if fp != base && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if opts.GlobFilter != "" {
			if ok, _ := path.Match(opts.GlobFilter, d.Name()); !ok {
				return nil
			}
		}
		rel, rerr := filepath.Rel(base, fp)
		if rerr != nil {
			rel = fp
		}
		if !scan(fp, rel) {
			return errStopWalk
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return nil, err
	}
	return matches, nil
}

func isBinary(data []byte) bool {
	probe := data
	if len(probe) > 512 {
		probe = probe[:512]
	}
	return bytes.IndexByte(probe, 0) >= 0
}

func (l *Local) Exec(ctx context.Context, command, dir string, timeout time.Duration) (*ExecResult, error) {
	workDir := l.workingDir
	if dir != "" {
		workDir = l.Resolve(dir)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shell, shellArg := "/bin/bash", "-c"
	if runtime.GOOS == "windows" {
		shell, shellArg = "cmd.exe", "/c"
	}

	cmd := exec.CommandContext(ctx, shell, shellArg, command)
	cmd.Dir = workDir

	// Own process group so a timeout can kill the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = filterEnvironment()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()

	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		} else if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("exec: %w", runErr)
		}
	}
	return result, nil
}
