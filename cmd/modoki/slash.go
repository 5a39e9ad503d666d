package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modoki-agent/modoki/agent"
	"github.com/modoki-agent/modoki/config"
	"github.com/modoki-agent/modoki/llm"
)

const (
	// fallbackContextWindow is assumed for models the catalog does not
	// know.
	fallbackContextWindow = 128000
	tokenBarWidth         = 30
)

type slashCommand struct {
	name string
	desc string
	run  func(r *repl, args string)
}

// Alphabetical, so /help prints a stable listing. Filled in init
// because cmdHelp walks the table that names it.
var slashCommands []slashCommand

func init() {
	slashCommands = []slashCommand{
		{"autoconfirm", "toggle auto-confirm for destructive tools", (*repl).cmdAutoconfirm},
		{"clear", "reset the conversation, keeping the system prompt", (*repl).cmdClear},
		{"compact", "summarize older messages to reclaim context", (*repl).cmdCompact},
		{"config", "show or change configuration", (*repl).cmdConfig},
		{"help", "list available commands", (*repl).cmdHelp},
		{"history", "show the conversation history", (*repl).cmdHistory},
		{"image", "send an image: /image <path> [question]", (*repl).cmdImage},
		{"model", "show or change the model", (*repl).cmdModel},
		{"skill", "run a skill: /skill <name> [extra instructions]", (*repl).cmdSkill},
		{"skills", "list skills, or /skills reload to rescan", (*repl).cmdSkills},
		{"tokens", "show estimated context usage", (*repl).cmdTokens},
	}
}

func (r *repl) slash(input string) {
	name, args, _ := strings.Cut(strings.TrimPrefix(input, "/"), " ")
	name = strings.ToLower(name)
	args = strings.TrimSpace(args)
	for _, cmd := range slashCommands {
		if cmd.name == name {
			cmd.run(r, args)
			return
		}
	}
	fmt.Fprintln(r.out, paint(redStyle, fmt.Sprintf("unknown command: /%s (/help lists commands)", name)))
}

func (r *repl) cmdHelp(string) {
	fmt.Fprintln(r.out, paint(boldStyle, "\nCommands:"))
	for _, cmd := range slashCommands {
		fmt.Fprintf(r.out, "  /%-12s %s\n", cmd.name, cmd.desc)
	}
	fmt.Fprintln(r.out, paint(dimStyle, "\n  << starts multiline input, quit/exit/q leaves"))
}

func (r *repl) cmdClear(string) {
	if err := r.session.Reset(); err != nil {
		fmt.Fprintln(r.out, paint(redStyle, err.Error()))
		return
	}
	fmt.Fprintln(r.out, paint(greenStyle, "conversation cleared"))
}

func (r *repl) cmdCompact(string) {
	before := r.session.History()
	beforeTokens := agent.EstimateTokens(before)
	n, err := r.session.CompactHistory(context.Background())
	if err != nil {
		fmt.Fprintln(r.out, paint(redStyle, "compaction failed: "+err.Error()))
		return
	}
	afterTokens := agent.EstimateTokens(r.session.History())
	fmt.Fprintln(r.out, paint(greenStyle, fmt.Sprintf(
		"conversation compacted: %d -> %d messages (≈%d -> ≈%d tokens)",
		len(before), n, beforeTokens, afterTokens)))
}

func (r *repl) cmdHistory(string) {
	hist := r.session.History()
	fmt.Fprintln(r.out, paint(boldStyle, fmt.Sprintf(
		"\nHistory: %d messages (≈%d tokens)", len(hist), agent.EstimateTokens(hist))))
	for i, m := range hist {
		style := dimStyle
		switch m.Role {
		case llm.RoleSystem:
			style = magentaStyle
		case llm.RoleUser:
			style = cyanStyle
		case llm.RoleAssistant:
			style = greenStyle
		}
		preview := "[multimodal]"
		if len(m.Parts) == 0 {
			preview = truncateRunes(strings.ReplaceAll(m.Content, "\n", " "), 80)
		}
		fmt.Fprintf(r.out, "  [%d] %-10s %s\n", i, paint(style, string(m.Role)), preview)
	}
}

func (r *repl) cmdTokens(string) {
	est := agent.EstimateTokens(r.session.History())
	budget := fallbackContextWindow
	if info := llm.GetModelInfo(r.session.Model()); info != nil && info.ContextWindow > 0 {
		budget = info.ContextWindow
	}
	pct := float64(est) / float64(budget)
	filled := min(int(pct*tokenBarWidth), tokenBarWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", tokenBarWidth-filled)
	style := greenStyle
	switch {
	case pct >= 0.85:
		style = redStyle
	case pct >= 0.6:
		style = yellowStyle
	}
	fmt.Fprintf(r.out, "  context: [%s] ≈%d / %d tokens (%.0f%%)\n",
		paint(style, bar), est, budget, pct*100)
}

func (r *repl) cmdAutoconfirm(string) {
	on := r.session.SetAutoConfirm(!r.session.AutoConfirm())
	r.cfg.AutoConfirm = on
	if on {
		fmt.Fprintln(r.out, paint(yellowStyle, "auto-confirm: ON (destructive tools run without asking)"))
	} else {
		fmt.Fprintln(r.out, paint(greenStyle, "auto-confirm: OFF"))
	}
}

func (r *repl) cmdModel(args string) {
	if args == "" {
		fmt.Fprintf(r.out, "current model: %s\n", paint(boldStyle, r.session.Model()))
		fmt.Fprintln(r.out, paint(dimStyle, "  /model <name> to change, e.g. /model gpt-4.1  |  /model gpt-4o-mini"))
		return
	}
	r.session.SetModel(args)
	r.cfg.Model = args
	fmt.Fprintln(r.out, paint(greenStyle, "model changed: "+args))
}

func (r *repl) cmdConfig(args string) {
	switch {
	case args == "":
		defaults := config.Default()
		fmt.Fprintln(r.out, paint(boldStyle, "\nConfiguration:"))
		for _, key := range config.Keys() {
			v, _ := r.cfg.Get(key)
			dv, _ := defaults.Get(key)
			rendered, _ := json.Marshal(v)
			marker := ""
			if v != dv {
				marker = paint(yellowStyle, " (modified)")
			}
			fmt.Fprintf(r.out, "  %-24s %s%s\n", key, rendered, marker)
		}
		fmt.Fprintln(r.out, paint(dimStyle, "\n  file: "+r.cfgPath))
		fmt.Fprintln(r.out, paint(dimStyle, "  /config <key> <value> to change, /config save to persist"))
	case args == "save":
		if err := config.Save(r.cfgPath, *r.cfg); err != nil {
			fmt.Fprintln(r.out, paint(redStyle, "save failed: "+err.Error()))
			return
		}
		fmt.Fprintln(r.out, paint(greenStyle, "saved to "+r.cfgPath))
	default:
		key, value, ok := strings.Cut(args, " ")
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			fmt.Fprintln(r.out, paint(redStyle, "usage: /config <key> <value>"))
			return
		}
		if err := r.cfg.Set(key, value); err != nil {
			fmt.Fprintln(r.out, paint(redStyle, err.Error()))
			return
		}
		switch key {
		case "model":
			r.session.SetModel(r.cfg.Model)
		case "auto_confirm":
			r.session.SetAutoConfirm(r.cfg.AutoConfirm)
		}
		fmt.Fprintln(r.out, paint(greenStyle, key+" = "+value))
	}
}

func (r *repl) cmdImage(args string) {
	if args == "" {
		fmt.Fprintln(r.out, paint(redStyle, "usage: /image <path> [question]"))
		return
	}
	path, question, _ := strings.Cut(args, " ")
	question = strings.TrimSpace(question)
	if question == "" {
		question = "Describe this image."
	}
	path = expandPath(path)
	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintln(r.out, paint(redStyle, "file not found: "+path))
		return
	}
	dataURL, err := llm.EncodeImageFile(path)
	if err != nil {
		fmt.Fprintln(r.out, paint(redStyle, err.Error()))
		return
	}
	fmt.Fprintln(r.out, paint(dimStyle, fmt.Sprintf("  📷 %s (%s)", filepath.Base(path), humanSize(info.Size()))))
	r.runTurn(llm.UserImageMessage(question, dataURL))
}

func (r *repl) cmdSkills(args string) {
	if args == "reload" {
		r.skills.Scan()
		fmt.Fprintln(r.out, paint(greenStyle, fmt.Sprintf("skills reloaded: %d found", r.skills.Count())))
		return
	}
	list := r.skills.List()
	if len(list) == 0 {
		fmt.Fprintln(r.out, paint(dimStyle, "no skills found"))
		fmt.Fprintln(r.out, paint(dimStyle, "  add skills under ~/.modoki/skills/<name>/SKILL.md or ./skills/<name>/SKILL.md"))
		return
	}
	fmt.Fprintln(r.out, paint(boldStyle, fmt.Sprintf("\nSkills (%d):", len(list))))
	for _, s := range list {
		fmt.Fprintf(r.out, "  %-16s %s %s\n", paint(cyanStyle, s.Name), s.Description, paint(dimStyle, "["+s.Source+"]"))
	}
	fmt.Fprintln(r.out, paint(dimStyle, "\n  /skill <name> [extra instructions] runs one"))
}

func (r *repl) cmdSkill(args string) {
	if args == "" {
		fmt.Fprintln(r.out, paint(redStyle, "usage: /skill <name> [extra instructions]"))
		return
	}
	name, extra, _ := strings.Cut(args, " ")
	extra = strings.TrimSpace(extra)
	if _, ok := r.skills.Get(name); !ok {
		fmt.Fprintln(r.out, paint(redStyle, "skill not found: "+name))
		fmt.Fprintln(r.out, paint(dimStyle, "  /skills lists what is available"))
		return
	}
	instructions, err := r.skills.Instructions(name)
	if err != nil {
		fmt.Fprintln(r.out, paint(redStyle, fmt.Sprintf("loading skill %q: %v", name, err)))
		return
	}
	message := fmt.Sprintf("[Running skill: %s]\n\n%s", name, instructions)
	if extra != "" {
		message += "\n\n## Additional instructions\n" + extra
	}
	fmt.Fprintln(r.out, paint(dimStyle, fmt.Sprintf("  🔧 running skill %q", name)))
	r.runTurn(llm.UserMessage(message))
}

func expandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func humanSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}
