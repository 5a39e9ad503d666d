package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modoki-agent/modoki/agent"
	"github.com/modoki-agent/modoki/confirm"
	"github.com/modoki-agent/modoki/llm"
	"github.com/modoki-agent/modoki/skills"
	"github.com/modoki-agent/modoki/tools"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptModel serves pre-scripted streaming turns in order. A gate set
// on the model holds back the next turn until the channel closes.
type scriptModel struct {
	mu    sync.Mutex
	turns [][]llm.StreamEvent
	gate  chan struct{}
}

func (m *scriptModel) Stream(_ context.Context, _ llm.Request) (<-chan llm.StreamEvent, error) {
	m.mu.Lock()
	if len(m.turns) == 0 {
		m.mu.Unlock()
		return nil, errors.New("scriptModel: no turns left")
	}
	events := m.turns[0]
	m.turns = m.turns[1:]
	gate := m.gate
	m.gate = nil
	m.mu.Unlock()

	ch := make(chan llm.StreamEvent)
	go func() {
		defer close(ch)
		if gate != nil {
			<-gate
		}
		for _, ev := range events {
			ch <- ev
		}
	}()
	return ch, nil
}

func (m *scriptModel) Complete(context.Context, llm.Request) (*llm.Response, error) {
	return &llm.Response{Content: "summary"}, nil
}

func answerEvents(text string) []llm.StreamEvent {
	return []llm.StreamEvent{
		{Type: llm.StreamTextDelta, Text: text},
		{Type: llm.StreamFinish, FinishReason: "stop"},
	}
}

// syncBuffer lets the test read output while the bridge writes it.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

type stdioHarness struct {
	session *agent.Session
	table   *confirm.Table
	in      *io.PipeWriter
	out     *syncBuffer
	done    chan error
}

func startStdio(t *testing.T, model agent.ModelClient, reg *skills.Registry) *stdioHarness {
	t.Helper()
	if reg == nil {
		reg = skills.NewRegistry()
	}
	table := confirm.NewTable()
	session := agent.NewSession(model, tools.NewRegistry(), tools.NewLocal(t.TempDir()), nil,
		agent.WithLogger(discardLogger()))

	pr, pw := io.Pipe()
	out := &syncBuffer{}
	b := NewStdio(session, reg, table, pr, out)
	b.WorkingDir = "/work"

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()
	t.Cleanup(func() { pw.Close() })

	return &stdioHarness{session: session, table: table, in: pw, out: out, done: done}
}

func (h *stdioHarness) send(t *testing.T, frame string) {
	t.Helper()
	if _, err := h.in.Write([]byte(frame + "\n")); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func (h *stdioHarness) waitFor(t *testing.T, substr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(h.out.String(), substr) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %q in output:\n%s", substr, h.out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// finish closes the input, waits for Run, and decodes all frames.
func (h *stdioHarness) finish(t *testing.T) []map[string]any {
	t.Helper()
	h.in.Close()
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after input close")
	}
	return decodeFrames(t, h.out.String())
}

func decodeFrames(t *testing.T, output string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		var frame map[string]any
		if err := json.Unmarshal(sc.Bytes(), &frame); err != nil {
			t.Fatalf("bad frame %q: %v", sc.Text(), err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func frameIndex(frames []map[string]any, typ string) int {
	for i, f := range frames {
		if f["type"] == typ {
			return i
		}
	}
	return -1
}

func writeSkillDir(t *testing.T, base, name, body string) {
	t.Helper()
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "---\nname: " + name + "\ndescription: Review a change set\n---\n" + body
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func projectSkills(t *testing.T) *skills.Registry {
	t.Helper()
	base := t.TempDir()
	writeSkillDir(t, base, "code-review", "Check the diff for bugs first, then style.\n")
	reg := skills.NewRegistry(skills.Location{Source: "project", Dir: base})
	reg.Scan()
	return reg
}

func TestFrameFlattensEvent(t *testing.T) {
	frame := Frame(agent.Event{Kind: agent.EventToken, Data: map[string]any{"content": "x"}})
	if frame["type"] != "token" || frame["content"] != "x" {
		t.Errorf("frame = %v", frame)
	}
}

func TestFrameCapsToolResultForWire(t *testing.T) {
	long := strings.Repeat("z", 2*maxWireResultChars)
	frame := Frame(agent.Event{Kind: agent.EventToolResult, Data: map[string]any{
		"name": "read_file", "result": long, "status": "ok",
	}})
	if got := frame["result"].(string); len(got) != maxWireResultChars {
		t.Errorf("wire result length = %d, want %d", len(got), maxWireResultChars)
	}
	// Other kinds pass through untouched.
	frame = Frame(agent.Event{Kind: agent.EventStatus, Data: map[string]any{"result": long}})
	if got := frame["result"].(string); len(got) != len(long) {
		t.Errorf("status frame truncated to %d", len(got))
	}
}

func TestStdioAnnouncesSystemInfo(t *testing.T) {
	h := startStdio(t, &scriptModel{}, projectSkills(t))
	frames := h.finish(t)

	if len(frames) == 0 || frames[0]["type"] != "system_info" {
		t.Fatalf("first frame = %v", frames)
	}
	info := frames[0]
	if info["model"] != agent.DefaultModel || info["cwd"] != "/work" || info["os"] != runtime.GOOS {
		t.Errorf("system_info = %v", info)
	}
	skillsList, ok := info["skills"].([]any)
	if !ok || len(skillsList) != 1 {
		t.Fatalf("skills = %v", info["skills"])
	}
	first := skillsList[0].(map[string]any)
	if first["name"] != "code-review" || first["source"] != "project" {
		t.Errorf("skill entry = %v", first)
	}
}

func TestStdioUserMessageFlow(t *testing.T) {
	model := &scriptModel{turns: [][]llm.StreamEvent{answerEvents("Hello")}}
	h := startStdio(t, model, nil)

	h.send(t, `{"type":"user_message","content":"hi"}`)
	h.waitFor(t, `"chat_finished"`)
	frames := h.finish(t)

	token := frameIndex(frames, "token")
	done := frameIndex(frames, "assistant_done")
	finished := frameIndex(frames, "chat_finished")
	if token < 0 || done < 0 || finished < 0 {
		t.Fatalf("missing frames: %v", frames)
	}
	if !(token < done && done < finished) {
		t.Errorf("frame order: token=%d assistant_done=%d chat_finished=%d", token, done, finished)
	}
	if frames[token]["content"] != "Hello" || frames[done]["content"] != "Hello" {
		t.Errorf("content frames = %v, %v", frames[token], frames[done])
	}

	hist := h.session.History()
	if len(hist) != 3 || hist[1].Content != "hi" {
		t.Errorf("history = %+v", hist)
	}
}

func TestStdioBusyRejection(t *testing.T) {
	gate := make(chan struct{})
	model := &scriptModel{turns: [][]llm.StreamEvent{answerEvents("slow")}, gate: gate}
	h := startStdio(t, model, nil)

	h.send(t, `{"type":"user_message","content":"first"}`)
	deadline := time.Now().Add(2 * time.Second)
	for !h.session.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("session never became busy")
		}
		time.Sleep(time.Millisecond)
	}

	h.send(t, `{"type":"user_message","content":"second"}`)
	h.waitFor(t, "a turn is already in progress")

	close(gate)
	h.waitFor(t, `"chat_finished"`)
	h.finish(t)

	for _, m := range h.session.History() {
		if m.Content == "second" {
			t.Error("rejected message reached the history")
		}
	}
}

func TestStdioCommands(t *testing.T) {
	h := startStdio(t, &scriptModel{}, projectSkills(t))

	h.send(t, `{"type":"command","name":"model","args":"gpt-5"}`)
	h.send(t, `{"type":"command","name":"autoconfirm"}`)
	h.send(t, `{"type":"command","name":"skills"}`)
	h.send(t, `{"type":"command","name":"clear"}`)
	frames := h.finish(t)

	if h.session.Model() != "gpt-5" {
		t.Errorf("model = %q", h.session.Model())
	}
	if !h.session.AutoConfirm() {
		t.Error("autoconfirm not toggled on")
	}

	var statuses []string
	for _, f := range frames {
		if f["type"] == "status" {
			statuses = append(statuses, f["message"].(string))
		}
	}
	joined := strings.Join(statuses, "\n")
	for _, want := range []string{"model changed: gpt-5", "auto-confirm: ON", "conversation cleared"} {
		if !strings.Contains(joined, want) {
			t.Errorf("statuses missing %q: %v", want, statuses)
		}
	}
	if i := frameIndex(frames, "skills_list"); i < 0 {
		t.Error("no skills_list frame")
	}
}

func TestStdioConfirmResponseResolvesTable(t *testing.T) {
	h := startStdio(t, &scriptModel{}, nil)
	ch := h.table.Register("abc")

	h.send(t, `{"type":"confirm_response","id":"abc","approved":true}`)
	h.finish(t)

	select {
	case approved := <-ch:
		if !approved {
			t.Error("resolution = denied, want approved")
		}
	default:
		t.Error("confirmation was not resolved")
	}
}

func TestStdioRunSkillCommand(t *testing.T) {
	model := &scriptModel{turns: [][]llm.StreamEvent{answerEvents("done")}}
	h := startStdio(t, model, projectSkills(t))

	h.send(t, `{"type":"command","name":"run_skill","args":"code-review focus on naming"}`)
	h.waitFor(t, `"chat_finished"`)
	h.finish(t)

	hist := h.session.History()
	if len(hist) != 3 {
		t.Fatalf("history length = %d", len(hist))
	}
	injected := hist[1].Content
	for _, want := range []string{
		"[Running skill: code-review]",
		"Check the diff for bugs first",
		"## Additional instructions\nfocus on naming",
	} {
		if !strings.Contains(injected, want) {
			t.Errorf("injected message missing %q:\n%s", want, injected)
		}
	}
}

func TestStdioRunSkillUnknown(t *testing.T) {
	h := startStdio(t, &scriptModel{}, projectSkills(t))

	h.send(t, `{"type":"command","name":"run_skill","args":"ghost"}`)
	h.waitFor(t, `unknown skill`)
	frames := h.finish(t)

	i := frameIndex(frames, "error")
	if i < 0 || !strings.Contains(frames[i]["message"].(string), `unknown skill "ghost"`) {
		t.Errorf("error frame = %v", frames)
	}
}

func TestStdioDropsMalformedFrames(t *testing.T) {
	h := startStdio(t, &scriptModel{}, nil)

	h.send(t, `{not json`)
	h.send(t, ``)
	frames := h.finish(t)

	// Only the system_info greeting; garbage produced nothing.
	if len(frames) != 1 {
		t.Errorf("frames = %v", frames)
	}
}
