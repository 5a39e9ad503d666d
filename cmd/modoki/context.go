package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	gitCommandTimeout = 5 * time.Second
	maxTreeLines      = 200
	maxTreeDepth      = 3
	maxGitStatusChars = 500
	maxReadmeChars    = 2000
)

var skipTreeDirs = map[string]struct{}{
	"node_modules": {},
	"__pycache__":  {},
	"venv":         {},
	".venv":        {},
	"dist":         {},
	"build":        {},
	".git":         {},
}

var knownConfigFiles = []string{
	"package.json", "pyproject.toml", "Cargo.toml", "go.mod",
	"Makefile", "Dockerfile", "docker-compose.yml",
	".env.example", "requirements.txt", "setup.py", "setup.cfg",
}

// collectProjectContext summarizes the working directory for the system
// prompt: git state, a shallow directory tree, the head of the README,
// and which well-known config files are present. Every probe is best
// effort; a missing git binary or unreadable file just drops that
// section.
func collectProjectContext(dir string, maxFiles int) string {
	parts := []string{
		"## Project context (auto-collected)",
		"Working directory: " + dir,
	}

	if git := gitSummary(dir); git != "" {
		parts = append(parts, git)
	}

	parts = append(parts, "\n### Directory layout", directoryTree(dir, maxFiles))

	for _, name := range []string{"README.md", "README.txt", "README", "readme.md"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		text := string(data)
		if runes := []rune(text); len(runes) > maxReadmeChars {
			text = string(runes[:maxReadmeChars])
		}
		parts = append(parts, fmt.Sprintf("\n### %s (first %d chars)\n%s", name, maxReadmeChars, text))
		break
	}

	var found []string
	for _, name := range knownConfigFiles {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
			found = append(found, name)
		}
	}
	if len(found) > 0 {
		parts = append(parts, "\n### Detected config files\n"+strings.Join(found, ", "))
	}

	return strings.Join(parts, "\n")
}

func gitSummary(dir string) string {
	status, err := runGit(dir, "status", "--short")
	if err != nil {
		return ""
	}
	branch, _ := runGit(dir, "branch", "--show-current")

	lines := []string{"\n### Git", "Branch: " + strings.TrimSpace(branch)}
	status = strings.TrimSpace(status)
	if status != "" {
		if len(status) > maxGitStatusChars {
			status = status[:maxGitStatusChars]
		}
		lines = append(lines, "Changed files:\n"+status)
	} else {
		lines = append(lines, "No changes (clean)")
	}
	return strings.Join(lines, "\n")
}

func runGit(dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gitCommandTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	return string(out), err
}

// directoryTree renders the project layout down to maxTreeDepth levels,
// skipping hidden entries and the usual dependency and build
// directories. The walk stops once maxFiles files have been listed.
func directoryTree(dir string, maxFiles int) string {
	var lines []string
	fileCount := 0
	stopped := false

	var walk func(path string, depth int)
	walk = func(path string, depth int) {
		if stopped || depth > maxTreeDepth {
			return
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return
		}
		indent := strings.Repeat("  ", depth)
		name := filepath.Base(path)
		if name == "" || name == string(filepath.Separator) {
			name = "."
		}
		lines = append(lines, indent+name+"/")

		var subdirs []string
		for _, e := range entries {
			n := e.Name()
			if strings.HasPrefix(n, ".") {
				continue
			}
			if e.IsDir() {
				if _, skip := skipTreeDirs[n]; !skip {
					subdirs = append(subdirs, n)
				}
				continue
			}
			fileCount++
			if fileCount <= maxFiles {
				lines = append(lines, indent+"  "+n)
			}
		}
		if fileCount > maxFiles {
			lines = append(lines, fmt.Sprintf("  ... (%d+ more files)", fileCount))
			stopped = true
			return
		}
		for _, d := range subdirs {
			walk(filepath.Join(path, d), depth+1)
		}
	}
	walk(dir, 0)

	if len(lines) > maxTreeLines {
		lines = lines[:maxTreeLines]
	}
	return strings.Join(lines, "\n")
}
