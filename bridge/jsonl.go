// Package bridge connects a session to external front ends. Stdio
// speaks a JSON-lines protocol for desktop shells; Server relays the
// same frames over WebSocket and adds a small REST surface. Exactly one
// bridge owns a session's event stream.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/modoki-agent/modoki/agent"
	"github.com/modoki-agent/modoki/confirm"
	"github.com/modoki-agent/modoki/llm"
	"github.com/modoki-agent/modoki/skills"
)

// maxWireResultChars caps tool output on the wire. The conversation and
// in-process event consumers keep the full output.
const maxWireResultChars = 500

// maxFrameBytes bounds one inbound line.
const maxFrameBytes = 1 << 20

// LineWriter serializes frames as JSON lines. Safe for concurrent use.
type LineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{enc: json.NewEncoder(w)}
}

// Write emits one frame. Encode appends the trailing newline.
func (w *LineWriter) Write(frame map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(frame)
}

// Frame flattens an event into its wire shape: a type key plus the
// event's data keys.
func Frame(ev agent.Event) map[string]any {
	frame := make(map[string]any, len(ev.Data)+1)
	frame["type"] = string(ev.Kind)
	for k, v := range ev.Data {
		frame[k] = v
	}
	if ev.Kind == agent.EventToolResult {
		if s, ok := frame["result"].(string); ok && len(s) > maxWireResultChars {
			frame["result"] = s[:maxWireResultChars]
		}
	}
	return frame
}

// PublishConfirm adapts a session emitter into the publish callback of a
// confirm.RemoteGateway, so confirmation requests travel the same event
// stream as everything else.
func PublishConfirm(emitter *agent.Emitter) func(confirm.Request) {
	return func(req confirm.Request) {
		emitter.Emit(agent.EventConfirmRequest, map[string]any{
			"id":      req.ID,
			"tool":    req.Tool,
			"args":    req.Arguments,
			"preview": req.Preview,
		})
	}
}

// inbound is one request frame from the front end.
type inbound struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	ID       string `json:"id"`
	Approved bool   `json:"approved"`
	Name     string `json:"name"`
	Args     string `json:"args"`
}

// router executes inbound frames against the session. Frames that do
// not travel through the session's event stream go to send.
type router struct {
	session *agent.Session
	skills  *skills.Registry
	table   *confirm.Table
	send    func(map[string]any)
}

func (r *router) dispatch(ctx context.Context, msg inbound) {
	switch msg.Type {
	case "confirm_response":
		r.table.Resolve(msg.ID, msg.Approved)
	case "user_message":
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			return
		}
		r.submit(ctx, llm.UserMessage(content))
	case "command":
		r.command(ctx, msg.Name, strings.TrimSpace(msg.Args))
	}
}

// submit runs the turn on its own goroutine so the frame loop keeps
// reading. A submission while a turn runs is rejected, never queued.
func (r *router) submit(ctx context.Context, msg llm.Message) {
	go func() {
		_, err := r.session.SubmitMessage(ctx, msg)
		if errors.Is(err, agent.ErrSessionBusy) {
			r.sendError("a turn is already in progress, wait for it to finish")
		}
		// Other failures already reached the event stream as error and
		// chat_finished frames.
	}()
}

func (r *router) command(ctx context.Context, name, args string) {
	switch name {
	case "clear":
		if err := r.session.Reset(); err != nil {
			r.sendError(err.Error())
			return
		}
		r.sendStatus("conversation cleared")
	case "compact":
		n, err := r.session.CompactHistory(ctx)
		if err != nil {
			r.sendError(err.Error())
			return
		}
		r.sendStatus(fmt.Sprintf("conversation compacted: %d messages", n))
	case "autoconfirm":
		if r.session.SetAutoConfirm(!r.session.AutoConfirm()) {
			r.sendStatus("auto-confirm: ON")
		} else {
			r.sendStatus("auto-confirm: OFF")
		}
	case "model":
		if args == "" {
			return
		}
		r.session.SetModel(args)
		r.sendStatus("model changed: " + args)
	case "skills":
		r.send(skillsListFrame(r.skills))
	case "skills_reload":
		r.skills.Scan()
		r.send(skillsListFrame(r.skills))
		r.sendStatus(fmt.Sprintf("skills reloaded: %d found", r.skills.Count()))
	case "run_skill":
		r.runSkill(ctx, args)
	}
}

// runSkill injects a skill's instructions as a user message and starts a
// turn, the remote twin of the run_skill tool.
func (r *router) runSkill(ctx context.Context, args string) {
	name, extra, _ := strings.Cut(args, " ")
	if name == "" {
		return
	}
	if _, ok := r.skills.Get(name); !ok {
		r.sendError(fmt.Sprintf("unknown skill %q", name))
		return
	}
	instructions, err := r.skills.Instructions(name)
	if err != nil {
		r.sendError(fmt.Sprintf("loading skill %q: %v", name, err))
		return
	}
	content := fmt.Sprintf("[Running skill: %s]\n\n%s", name, instructions)
	if extra = strings.TrimSpace(extra); extra != "" {
		content += "\n\n## Additional instructions\n" + extra
	}
	r.submit(ctx, llm.UserMessage(content))
}

func (r *router) sendStatus(msg string) {
	r.send(map[string]any{"type": string(agent.EventStatus), "message": msg})
}

func (r *router) sendError(msg string) {
	r.send(map[string]any{"type": string(agent.EventError), "message": msg})
}

func skillsListFrame(reg *skills.Registry) map[string]any {
	return map[string]any{
		"type":   string(agent.EventSkillsList),
		"skills": skillPayload(reg.List()),
	}
}

func skillPayload(list []skills.Skill) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, s := range list {
		out = append(out, map[string]any{
			"name":        s.Name,
			"description": s.Description,
			"source":      s.Source,
		})
	}
	return out
}

func systemInfoFrame(session *agent.Session, reg *skills.Registry, workingDir string, hasContext bool) map[string]any {
	return map[string]any{
		"type":        string(agent.EventSystemInfo),
		"model":       session.Model(),
		"cwd":         workingDir,
		"os":          runtime.GOOS,
		"has_context": hasContext,
		"skills":      skillPayload(reg.List()),
	}
}

// Stdio speaks the JSON-lines protocol over a reader and writer pair,
// normally stdin and stdout under a desktop shell.
type Stdio struct {
	session *agent.Session
	skills  *skills.Registry
	in      io.Reader
	out     *LineWriter
	router  *router

	// WorkingDir and HasContext are reported in the initial system_info
	// frame.
	WorkingDir string
	HasContext bool
}

func NewStdio(session *agent.Session, reg *skills.Registry, table *confirm.Table, in io.Reader, out io.Writer) *Stdio {
	wd, _ := os.Getwd()
	b := &Stdio{
		session:    session,
		skills:     reg,
		in:         in,
		out:        NewLineWriter(out),
		WorkingDir: wd,
	}
	b.router = &router{
		session: session,
		skills:  reg,
		table:   table,
		send:    func(frame map[string]any) { b.out.Write(frame) },
	}
	return b
}

// Run announces system_info, then pumps session events out and routes
// inbound frames until the input closes. The session is closed on exit,
// so Run owns the session's lifetime.
func (b *Stdio) Run(ctx context.Context) error {
	b.out.Write(systemInfoFrame(b.session, b.skills, b.WorkingDir, b.HasContext))

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for ev := range b.session.Events() {
			b.out.Write(Frame(ev))
		}
	}()

	sc := bufio.NewScanner(b.in)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var msg inbound
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			// Undecodable frames are dropped.
			continue
		}
		b.router.dispatch(ctx, msg)
	}

	b.session.Close()
	<-pumpDone
	return sc.Err()
}
