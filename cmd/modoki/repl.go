package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/modoki-agent/modoki/agent"
	"github.com/modoki-agent/modoki/config"
	"github.com/modoki-agent/modoki/llm"
	"github.com/modoki-agent/modoki/skills"
)

const (
	maxArgsPreview   = 120
	maxResultPreview = 150
)

// repl drives the interactive terminal loop. Input and the confirmation
// gateway share one reader so prompts never race over stdin; events from
// the session render on a background goroutine while SubmitMessage
// blocks the loop for the duration of a turn.
type repl struct {
	session *agent.Session
	skills  *skills.Registry
	cfg     *config.Config
	cfgPath string
	workDir string

	in   *bufio.Reader
	out  io.Writer
	spin *spinner

	turnEnd     chan struct{}
	interrupted atomic.Bool
}

func newREPL(session *agent.Session, reg *skills.Registry, cfg *config.Config, cfgPath, workDir string, in *bufio.Reader) *repl {
	r := &repl{
		session: session,
		skills:  reg,
		cfg:     cfg,
		cfgPath: cfgPath,
		workDir: workDir,
		in:      in,
		out:     os.Stdout,
		turnEnd: make(chan struct{}, 1),
	}
	r.spin = newSpinner(r.out)
	go r.renderEvents()
	return r
}

func (r *repl) banner(baseURL string, hasContext bool) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(r.out, rule)
	fmt.Fprintf(r.out, "  %s - agent for local files and commands\n", paint(boldStyle, "modoki"))
	fmt.Fprintf(r.out, "  OS: %s | CWD: %s\n", runtime.GOOS, r.workDir)
	fmt.Fprintf(r.out, "  Model: %s\n", r.session.Model())
	if baseURL != "" {
		fmt.Fprintf(r.out, "  Base URL: %s\n", baseURL)
	}
	if hasContext {
		fmt.Fprintf(r.out, "  %s project context loaded\n", paint(greenStyle, "✓"))
	}
	if n := r.skills.Count(); n > 0 {
		fmt.Fprintf(r.out, "  %s %d skills loaded (/skills to list)\n", paint(greenStyle, "✓"), n)
	}
	fmt.Fprintln(r.out, paint(dimStyle, "  /help for commands | << for multiline | quit to exit"))
	fmt.Fprintln(r.out, rule)
}

func (r *repl) loop() {
	for {
		input, ok := r.readLine("\n" + paint(boldStyle, "> "))
		if !ok {
			fmt.Fprintln(r.out, "\nBye!")
			return
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "<<" {
			input = r.readMultiline()
			if input == "" {
				continue
			}
		}
		switch strings.ToLower(input) {
		case "quit", "exit", "q":
			fmt.Fprintln(r.out, "Bye!")
			return
		}
		if strings.HasPrefix(input, "/") {
			r.slash(input)
			continue
		}
		r.runTurn(llm.UserMessage(input))
	}
}

func (r *repl) readLine(prompt string) (string, bool) {
	fmt.Fprint(r.out, prompt)
	line, err := r.in.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	return strings.TrimRight(line, "\r\n"), true
}

func (r *repl) readMultiline() string {
	fmt.Fprintln(r.out, paint(dimStyle, "  (multiline mode - end with '>>' on its own line)"))
	var lines []string
	for {
		line, ok := r.readLine(paint(dimStyle, "... "))
		if !ok {
			break
		}
		if strings.TrimSpace(line) == ">>" {
			break
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// runTurn submits one user message and blocks until the renderer has
// seen the closing chat_finished event. Ctrl-C cancels the turn context;
// the session rolls the speculative message back on its own.
func (r *repl) runTurn(msg llm.Message) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			r.interrupted.Store(true)
			cancel()
		case <-ctx.Done():
		}
	}()

	_, _ = r.session.SubmitMessage(ctx, msg)

	// Submit has returned, so the finishing events are already queued;
	// the timeout only guards against a dropped frame.
	select {
	case <-r.turnEnd:
	case <-time.After(2 * time.Second):
	}
}

func (r *repl) renderEvents() {
	printedText := false
	for ev := range r.session.Events() {
		switch ev.Kind {
		case agent.EventStatus:
			if msg, _ := ev.Data["message"].(string); msg != "" {
				r.spin.Start(msg)
			}
		case agent.EventToken:
			r.spin.Stop()
			if content, _ := ev.Data["content"].(string); content != "" {
				fmt.Fprint(r.out, content)
				printedText = true
			}
		case agent.EventToolCall:
			r.spin.Stop()
			name, _ := ev.Data["name"].(string)
			args, _ := ev.Data["args"].(map[string]any)
			fmt.Fprintf(r.out, "\n  %s %s%s\n",
				paint(cyanStyle, "⚡"),
				paint(boldStyle, name),
				paint(dimStyle, "("+argsPreview(args)+")"))
		case agent.EventToolResult:
			r.spin.Stop()
			name, _ := ev.Data["name"].(string)
			result, _ := ev.Data["result"].(string)
			status, _ := ev.Data["status"].(string)
			icon := greenStyle
			switch status {
			case "skipped":
				icon = yellowStyle
			case "error":
				icon = redStyle
			}
			fmt.Fprintf(r.out, "  %s %s\n",
				paint(icon, "↳"),
				paint(dimStyle, name+": "+resultPreview(result)))
		case agent.EventAssistantDone:
			r.spin.Stop()
			if printedText {
				fmt.Fprintln(r.out)
			}
			printedText = false
		case agent.EventError:
			r.spin.Stop()
			msg, _ := ev.Data["message"].(string)
			if r.interrupted.Swap(false) {
				fmt.Fprintf(r.out, "\n%s\n", paint(yellowStyle, "⚠ interrupted"))
			} else {
				fmt.Fprintf(r.out, "\n%s %s\n", paint(redStyle, "[API error]"), msg)
			}
			printedText = false
		case agent.EventChatFinished:
			r.spin.Stop()
			printedText = false
			select {
			case r.turnEnd <- struct{}{}:
			default:
			}
		}
	}
}

func argsPreview(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	s := string(data)
	if s == "null" {
		s = "{}"
	}
	if utf8.RuneCountInString(s) > maxArgsPreview {
		s = truncateRunes(s, maxArgsPreview) + "..."
	}
	return s
}

func resultPreview(result string) string {
	return truncateRunes(strings.ReplaceAll(result, "\n", " "), maxResultPreview)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
