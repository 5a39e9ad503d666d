// Command modoki runs a local-machine coding agent. By default it is an
// interactive terminal REPL; --gui speaks the JSON-lines stdio protocol
// for a desktop shell, and --serve exposes the WebSocket and REST
// bridge instead.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/modoki-agent/modoki/agent"
	"github.com/modoki-agent/modoki/bridge"
	"github.com/modoki-agent/modoki/config"
	"github.com/modoki-agent/modoki/confirm"
	"github.com/modoki-agent/modoki/llm"
	"github.com/modoki-agent/modoki/skills"
	"github.com/modoki-agent/modoki/tools"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("modoki", pflag.ContinueOnError)
	gui := flags.Bool("gui", false, "speak the JSON-lines stdio protocol for a desktop shell")
	serve := flags.Bool("serve", false, "serve the WebSocket and REST bridge")
	addr := flags.String("addr", "127.0.0.1:8765", "listen address for --serve")
	modelFlag := flags.String("model", "", "model override for this run")
	autoConfirm := flags.BoolP("auto-confirm", "y", false, "run destructive tools without asking")
	noColor := flags.Bool("no-color", false, "disable styled terminal output")
	workdirFlag := flags.String("workdir", "", "working directory (default: current directory)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	colorsOn = colorEnabled(*noColor)
	if *gui || *serve {
		colorsOn = false
	}

	cfgPath, err := config.Path()
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v, continuing with defaults\n", err)
	}
	cfg.ApplyEnv()
	if *modelFlag != "" {
		cfg.Model = *modelFlag
	}
	if *autoConfirm {
		cfg.AutoConfirm = true
	}

	workingDir, err := resolveWorkdir(*workdirFlag)
	if err != nil {
		return err
	}

	client, err := llm.NewClientFromEnv()
	if err != nil {
		return err
	}

	registry := tools.NewBuiltinRegistry(tools.BuiltinOptions{
		CommandTimeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	})
	env := tools.NewLocal(workingDir)

	skillReg := skills.NewRegistry(skills.DefaultLocations(workingDir)...)
	skillReg.Scan()
	skills.RegisterRunSkillTool(registry, skillReg)

	projectContext := ""
	if cfg.AutoContext {
		if !*gui && !*serve {
			fmt.Println(paint(dimStyle, "collecting project context..."))
		}
		projectContext = collectProjectContext(workingDir, cfg.AutoContextMaxFiles)
	}

	sc := agent.DefaultSessionConfig()
	sc.Model = cfg.Model
	sc.AutoConfirm = cfg.AutoConfirm
	sc.TrimLimit = cfg.MaxContextMessages
	sc.CompactKeepRecent = cfg.CompactKeepRecent
	sc.SystemPrompt = agent.BuildSystemPrompt(agent.PromptInfo{
		Model:          cfg.Model,
		WorkingDir:     workingDir,
		Skills:         skillReg.List(),
		ProjectContext: projectContext,
	})

	table := confirm.NewTable()

	switch {
	case *gui:
		// Stdout carries protocol frames, so logs go to stderr and the
		// bridge publishes confirmations as confirm_request frames.
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		emitter := agent.NewEmitter(0)
		session := agent.NewSession(client, registry, env, &sc,
			agent.WithEmitter(emitter),
			agent.WithGateway(confirm.NewRemoteGateway(table, bridge.PublishConfirm(emitter))),
			agent.WithLogger(logger),
		)
		b := bridge.NewStdio(session, skillReg, table, os.Stdin, os.Stdout)
		b.WorkingDir = workingDir
		b.HasContext = projectContext != ""
		return b.Run(context.Background())

	case *serve:
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		emitter := agent.NewEmitter(0)
		session := agent.NewSession(client, registry, env, &sc,
			agent.WithEmitter(emitter),
			agent.WithGateway(confirm.NewRemoteGateway(table, bridge.PublishConfirm(emitter))),
			agent.WithLogger(logger),
		)
		defer session.Close()
		srv := bridge.NewServer(session, skillReg, table, bridge.WithServerLogger(logger))
		srv.WorkingDir = workingDir
		srv.HasContext = projectContext != ""
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger.Info("listening", "addr", *addr)
		return srv.Run(ctx, *addr)

	default:
		// The REPL and the confirmation gateway share one stdin reader;
		// the renderer prints errors, so the session logger stays quiet.
		in := bufio.NewReader(os.Stdin)
		session := agent.NewSession(client, registry, env, &sc,
			agent.WithGateway(confirm.NewTerminalGateway(in, os.Stdout)),
			agent.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		)
		defer session.Close()
		r := newREPL(session, skillReg, &cfg, cfgPath, workingDir, in)
		r.banner(os.Getenv("OPENAI_BASE_URL"), projectContext != "")
		r.loop()
		return nil
	}
}

func resolveWorkdir(flag string) (string, error) {
	if flag == "" {
		return os.Getwd()
	}
	abs, err := filepath.Abs(flag)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("workdir: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workdir %s is not a directory", abs)
	}
	return abs, nil
}
