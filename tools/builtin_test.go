package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func builtinFixture(t *testing.T) (*Registry, *Local, string) {
	t.Helper()
	dir := t.TempDir()
	return NewBuiltinRegistry(BuiltinOptions{}), NewLocal(dir), dir
}

func mustExecute(t *testing.T, r *Registry, env Environment, name string, args map[string]any) string {
	t.Helper()
	out, err := r.Execute(context.Background(), env, name, args)
	if err != nil {
		t.Fatalf("Execute(%s) error: %v", name, err)
	}
	return out
}

func TestBuiltinToolSet(t *testing.T) {
	r, _, _ := builtinFixture(t)

	want := []string{
		"edit_file", "get_file_info", "grep", "list_directory",
		"read_file", "run_command", "search_files", "write_file",
	}
	names := r.Names()
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	for _, name := range []string{"run_command", "write_file", "edit_file"} {
		if !r.IsDestructive(name) {
			t.Errorf("%s should be destructive", name)
		}
	}
	for _, name := range []string{"read_file", "list_directory", "search_files", "grep", "get_file_info"} {
		if r.IsDestructive(name) {
			t.Errorf("%s should not be destructive", name)
		}
	}
}

func TestReadFileTool(t *testing.T) {
	r, env, dir := builtinFixture(t)
	writeTestFile(t, dir, "f.txt", "one\ntwo\nthree\n")

	out := mustExecute(t, r, env, "read_file", map[string]any{"path": "f.txt"})
	wantHeader := "[" + filepath.Join(dir, "f.txt") + "] (3 lines total)\n"
	if !strings.HasPrefix(out, wantHeader) {
		t.Errorf("header = %q, want prefix %q", out, wantHeader)
	}
	if !strings.HasSuffix(out, "one\ntwo\nthree\n") {
		t.Errorf("content missing: %q", out)
	}
}

func TestReadFileToolOffsetLimit(t *testing.T) {
	r, env, dir := builtinFixture(t)
	writeTestFile(t, dir, "f.txt", "one\ntwo\nthree\nfour\n")

	out := mustExecute(t, r, env, "read_file", map[string]any{
		"path": "f.txt", "offset": 1, "limit": 2,
	})
	if !strings.Contains(out, "showing lines 2-3") {
		t.Errorf("range header missing: %q", out)
	}
	if !strings.Contains(out, "two\nthree\n") || strings.Contains(out, "one\n") {
		t.Errorf("selected lines wrong: %q", out)
	}
	if strings.Contains(out, "four") {
		t.Errorf("limit not applied: %q", out)
	}
}

func TestReadFileToolTruncatesLongContent(t *testing.T) {
	r, env, dir := builtinFixture(t)
	long := strings.Repeat("x", maxReadChars+500)
	writeTestFile(t, dir, "big.txt", long)

	out := mustExecute(t, r, env, "read_file", map[string]any{"path": "big.txt"})
	if !strings.Contains(out, "[...truncated, total") {
		t.Errorf("truncation notice missing")
	}
}

func TestReadFileToolErrors(t *testing.T) {
	r, env, dir := builtinFixture(t)

	if _, err := r.Execute(context.Background(), env, "read_file", map[string]any{"path": "absent.txt"}); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := r.Execute(context.Background(), env, "read_file", map[string]any{}); err == nil {
		t.Error("expected error for missing path argument")
	}

	writeTestFile(t, dir, "bin.dat", "abc\x00def")
	if _, err := r.Execute(context.Background(), env, "read_file", map[string]any{"path": "bin.dat"}); err == nil ||
		!strings.Contains(err.Error(), "binary") {
		t.Errorf("binary file error = %v", err)
	}
}

func TestWriteFileTool(t *testing.T) {
	r, env, dir := builtinFixture(t)

	out := mustExecute(t, r, env, "write_file", map[string]any{
		"path": "nested/dir/out.txt", "content": "hello",
	})
	if !strings.Contains(out, "Wrote file:") || !strings.Contains(out, "(5 chars)") {
		t.Errorf("result = %q", out)
	}

	data, err := os.ReadFile(filepath.Join(dir, "nested", "dir", "out.txt"))
	if err != nil {
		t.Fatalf("file not written: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}
}

func TestEditFileTool(t *testing.T) {
	r, env, dir := builtinFixture(t)
	writeTestFile(t, dir, "main.go", "package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n")

	out := mustExecute(t, r, env, "edit_file", map[string]any{
		"path":       "main.go",
		"old_string": "println(\"hi\")",
		"new_string": "println(\"bye\")",
	})
	if !strings.Contains(out, "Edited file:") {
		t.Errorf("result = %q", out)
	}
	if !strings.Contains(out, "-\tprintln(\"hi\")") || !strings.Contains(out, "+\tprintln(\"bye\")") {
		t.Errorf("diff missing from result: %q", out)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "main.go"))
	if !strings.Contains(string(data), "println(\"bye\")") {
		t.Errorf("file not updated: %q", data)
	}
}

func TestEditFileToolErrors(t *testing.T) {
	r, env, dir := builtinFixture(t)
	writeTestFile(t, dir, "f.txt", "x y x\n")
	ctx := context.Background()

	_, err := r.Execute(ctx, env, "edit_file", map[string]any{
		"path": "f.txt", "old_string": "absent", "new_string": "z",
	})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("missing old_string error = %v", err)
	}

	_, err = r.Execute(ctx, env, "edit_file", map[string]any{
		"path": "f.txt", "old_string": "x", "new_string": "z",
	})
	if err == nil || !strings.Contains(err.Error(), "appears 2 times") {
		t.Errorf("ambiguous old_string error = %v", err)
	}

	_, err = r.Execute(ctx, env, "edit_file", map[string]any{
		"path": "f.txt", "old_string": "", "new_string": "z",
	})
	if err == nil {
		t.Error("expected error for empty old_string")
	}
}

func TestListDirectoryTool(t *testing.T) {
	r, env, dir := builtinFixture(t)
	writeTestFile(t, dir, "b.txt", "bb")
	writeTestFile(t, dir, ".hidden", "h")
	if err := os.Mkdir(filepath.Join(dir, "Adir"), 0755); err != nil {
		t.Fatal(err)
	}

	out := mustExecute(t, r, env, "list_directory", map[string]any{})
	if !strings.Contains(out, "(2 items)") {
		t.Errorf("item count wrong: %q", out)
	}
	if !strings.Contains(out, "[DIR]  Adir") || !strings.Contains(out, "[FILE] b.txt") {
		t.Errorf("entries missing: %q", out)
	}
	if strings.Contains(out, ".hidden") {
		t.Errorf("hidden entry leaked: %q", out)
	}
	// Case-insensitive sort puts Adir before b.txt.
	if strings.Index(out, "Adir") > strings.Index(out, "b.txt") {
		t.Errorf("sort order wrong: %q", out)
	}

	out = mustExecute(t, r, env, "list_directory", map[string]any{"show_hidden": true})
	if !strings.Contains(out, ".hidden") || !strings.Contains(out, "(3 items)") {
		t.Errorf("show_hidden output = %q", out)
	}
}

func TestListDirectoryToolEmpty(t *testing.T) {
	r, env, _ := builtinFixture(t)
	out := mustExecute(t, r, env, "list_directory", map[string]any{})
	if !strings.Contains(out, "(empty)") {
		t.Errorf("empty marker missing: %q", out)
	}
}

func TestSearchFilesTool(t *testing.T) {
	r, env, dir := builtinFixture(t)
	writeTestFile(t, dir, "a.go", "package a")
	writeTestFile(t, dir, "sub/b.go", "package b")
	writeTestFile(t, dir, "c.md", "# doc")

	out := mustExecute(t, r, env, "search_files", map[string]any{"pattern": "**/*.go"})
	if !strings.Contains(out, "Found 2 matches") {
		t.Errorf("count wrong: %q", out)
	}
	if !strings.Contains(out, "[FILE] a.go") || !strings.Contains(out, filepath.Join("sub", "b.go")) {
		t.Errorf("matches missing: %q", out)
	}

	out = mustExecute(t, r, env, "search_files", map[string]any{"pattern": "*.rs"})
	if !strings.Contains(out, "No files match pattern '*.rs'") {
		t.Errorf("no-match message = %q", out)
	}
}

func TestGrepTool(t *testing.T) {
	r, env, dir := builtinFixture(t)
	writeTestFile(t, dir, "main.go", "package main\n// TODO: later\n")

	out := mustExecute(t, r, env, "grep", map[string]any{"pattern": "TODO"})
	if !strings.Contains(out, "grep: 1 matching lines") {
		t.Errorf("header = %q", out)
	}
	if !strings.Contains(out, "  main.go:2: // TODO: later") {
		t.Errorf("match line = %q", out)
	}

	out = mustExecute(t, r, env, "grep", map[string]any{"pattern": "nothing_here"})
	if !strings.Contains(out, "No lines match") {
		t.Errorf("no-match message = %q", out)
	}

	if _, err := r.Execute(context.Background(), env, "grep", map[string]any{"pattern": "["}); err == nil {
		t.Error("expected invalid regex error")
	}
}

func TestGetFileInfoTool(t *testing.T) {
	r, env, dir := builtinFixture(t)
	writeTestFile(t, dir, "doc.txt", "hello")

	out := mustExecute(t, r, env, "get_file_info", map[string]any{"path": "doc.txt"})

	var info fileInfoOut
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, out)
	}
	if info.Type != "file" || info.SizeBytes != 5 || info.Extension != ".txt" {
		t.Errorf("info = %+v", info)
	}
	if info.Path != filepath.Join(dir, "doc.txt") {
		t.Errorf("Path = %q", info.Path)
	}
	if _, err := time.Parse(time.RFC3339, info.Modified); err != nil {
		t.Errorf("Modified not RFC3339: %q", info.Modified)
	}

	out = mustExecute(t, r, env, "get_file_info", map[string]any{"path": "."})
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatal(err)
	}
	if info.Type != "directory" || info.Extension != "" {
		t.Errorf("dir info = %+v", info)
	}
}

func TestRunCommandTool(t *testing.T) {
	r, env, _ := builtinFixture(t)

	out := mustExecute(t, r, env, "run_command", map[string]any{"command": "echo hello"})
	if !strings.Contains(out, "hello\n") || !strings.Contains(out, "[exit code: 0]") {
		t.Errorf("result = %q", out)
	}

	out = mustExecute(t, r, env, "run_command", map[string]any{"command": "echo oops 1>&2; exit 2"})
	if !strings.Contains(out, "[stderr]\noops") {
		t.Errorf("stderr section missing: %q", out)
	}
	if !strings.Contains(out, "[exit code: 2]") {
		t.Errorf("exit code missing: %q", out)
	}

	if _, err := r.Execute(context.Background(), env, "run_command", map[string]any{}); err == nil {
		t.Error("expected error when command is missing")
	}
}

func TestRunCommandToolTimeout(t *testing.T) {
	dir := t.TempDir()
	r := NewBuiltinRegistry(BuiltinOptions{CommandTimeout: 100 * time.Millisecond})
	env := NewLocal(dir)

	_, err := r.Execute(context.Background(), env, "run_command", map[string]any{"command": "sleep 5"})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("timeout error = %v", err)
	}
}

func TestRunCommandPreview(t *testing.T) {
	r, env, _ := builtinFixture(t)

	got := r.Preview("run_command", map[string]any{"command": "ls -la"}, env)
	if got != "$ ls -la" {
		t.Errorf("preview = %q", got)
	}
	got = r.Preview("run_command", map[string]any{"command": "make", "cwd": "sub"}, env)
	if got != "$ make  (in sub)" {
		t.Errorf("preview with cwd = %q", got)
	}
}

func TestEditFilePreviewShowsDiff(t *testing.T) {
	r, env, dir := builtinFixture(t)
	writeTestFile(t, dir, "f.txt", "alpha\nbeta\ngamma\n")

	got := r.Preview("edit_file", map[string]any{
		"path": "f.txt", "old_string": "beta", "new_string": "delta",
	}, env)
	if !strings.Contains(got, "-beta") || !strings.Contains(got, "+delta") {
		t.Errorf("preview diff = %q", got)
	}

	// Ambiguous or unreadable targets fall back to a plain summary.
	got = r.Preview("edit_file", map[string]any{
		"path": "absent.txt", "old_string": "a", "new_string": "b",
	}, env)
	if got != "edit absent.txt" {
		t.Errorf("fallback preview = %q", got)
	}
}
