package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/modoki-agent/modoki/confirm"
	"github.com/modoki-agent/modoki/llm"
	"github.com/modoki-agent/modoki/tools"
)

var (
	// ErrSessionBusy is returned when a submission arrives while a turn
	// is in progress. Concurrent submissions are rejected, never queued.
	ErrSessionBusy = errors.New("session busy: a turn is already in progress")

	// ErrSessionClosed is returned for operations on a closed session.
	ErrSessionClosed = errors.New("session is closed")
)

// ModelClient is the slice of the llm client the engine depends on.
// *llm.Client satisfies it; tests substitute scripted fakes.
type ModelClient interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
	Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error)
}

// Session owns one conversation and drives the turn loop: stream a model
// response, and either return the final answer or dispatch the turn's
// tool calls, append their results, and go around again. The history is
// mutated only by the goroutine running Submit; at most one turn may be
// in progress at a time.
type Session struct {
	id       string
	client   ModelClient
	registry *tools.Registry
	env      tools.Environment
	emitter  *Emitter
	gateway  confirm.Gateway
	logger   *slog.Logger

	dispatcher *Dispatcher

	mu      sync.Mutex
	config  SessionConfig
	history []llm.Message
	busy    bool
	closed  bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithGateway sets the confirmation gateway for destructive tool calls.
// Without one, every destructive call is denied.
func WithGateway(gateway confirm.Gateway) SessionOption {
	return func(s *Session) { s.gateway = gateway }
}

// WithEmitter replaces the session's event emitter. Useful when the
// confirmation gateway publishes onto the same channel.
func WithEmitter(emitter *Emitter) SessionOption {
	return func(s *Session) { s.emitter = emitter }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// NewSession creates a session over the given model client, tool
// registry, and execution environment. A nil config uses defaults.
func NewSession(client ModelClient, registry *tools.Registry, env tools.Environment, config *SessionConfig, opts ...SessionOption) *Session {
	cfg := DefaultSessionConfig()
	if config != nil {
		cfg = *config
	}
	cfg.normalize()

	s := &Session{
		id:       uuid.New().String(),
		client:   client,
		registry: registry,
		env:      env,
		emitter:  NewEmitter(256),
		logger:   slog.Default(),
		config:   cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.config.SystemPrompt == "" {
		s.config.SystemPrompt = BuildSystemPrompt(PromptInfo{
			Model:      s.config.Model,
			WorkingDir: env.WorkingDir(),
		})
	}
	s.history = []llm.Message{llm.SystemMessage(s.config.SystemPrompt)}

	s.dispatcher = NewDispatcher(registry, env, s.gateway, DispatcherOptions{
		Workers:    s.config.MaxToolWorkers,
		CharLimits: s.config.ToolCharLimits,
		LineLimits: s.config.ToolLineLimits,
		Emitter:    s.emitter,
		Logger:     s.logger,
	})
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Events returns the engine event channel.
func (s *Session) Events() <-chan Event { return s.emitter.Events() }

// Busy reports whether a turn is in progress.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Model returns the currently configured model.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Model
}

// SetModel switches the model used for subsequent turns.
func (s *Session) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if model != "" {
		s.config.Model = model
	}
}

// AutoConfirm reports whether destructive calls bypass confirmation.
func (s *Session) AutoConfirm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.AutoConfirm
}

// SetAutoConfirm toggles confirmation bypass for destructive calls and
// returns the new value. Takes effect from the next dispatch.
func (s *Session) SetAutoConfirm(on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.AutoConfirm = on
	return s.config.AutoConfirm
}

// History returns a copy of the conversation.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := make([]llm.Message, len(s.history))
	copy(h, s.history)
	return h
}

// Reset clears the conversation back to the system message alone.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrSessionBusy
	}
	s.history = s.history[:1]
	return nil
}

// TrimHistory applies the hard message ceiling now and returns the
// resulting message count.
func (s *Session) TrimHistory() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return 0, ErrSessionBusy
	}
	s.history = Trim(s.history, s.config.TrimLimit)
	return len(s.history), nil
}

// CompactHistory summarizes the middle of the conversation through an
// auxiliary model call and returns the resulting message count. The
// session counts as busy for the duration of the call.
func (s *Session) CompactHistory(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return 0, ErrSessionBusy
	}
	s.busy = true
	model := s.config.Model
	keepRecent := s.config.CompactKeepRecent
	messages := make([]llm.Message, len(s.history))
	copy(messages, s.history)
	s.mu.Unlock()

	compactor := NewCompactor(s.client, model, keepRecent, s.logger)
	compacted := compactor.Compact(ctx, messages)

	s.mu.Lock()
	s.history = compacted
	s.busy = false
	n := len(s.history)
	s.mu.Unlock()
	return n, nil
}

// Close shuts the event channel. The session cannot be used afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.emitter.Close()
}

// Submit runs one full exchange for a plain text user message and
// returns the assistant's final answer.
func (s *Session) Submit(ctx context.Context, text string) (string, error) {
	return s.SubmitMessage(ctx, llm.UserMessage(text))
}

// SubmitMessage runs one full exchange for an arbitrary user message
// (text or multimodal). The message is appended speculatively; if the
// turn aborts on a model error it is rolled back so the conversation
// stays replayable. Only model-call failures surface as errors: tool
// failures, denials, and timeouts are absorbed into the conversation.
func (s *Session) SubmitMessage(ctx context.Context, msg llm.Message) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrSessionClosed
	}
	if s.busy {
		s.mu.Unlock()
		return "", ErrSessionBusy
	}
	s.busy = true
	s.history = Trim(s.history, s.config.TrimLimit)
	s.history = append(s.history, msg)
	s.mu.Unlock()

	answer, err := s.run(ctx)

	s.mu.Lock()
	if err != nil {
		// Undo the speculative user message. After a tool round the
		// tail is a tool message and the history is left as is.
		if n := len(s.history); n > 0 && s.history[n-1].Role == llm.RoleUser {
			s.history = s.history[:n-1]
		}
	}
	s.busy = false
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("turn aborted", "session", s.id, "error", err)
		s.emitter.Emit(EventError, map[string]any{"message": err.Error()})
		s.emitter.Emit(EventChatFinished, nil)
		return "", err
	}
	s.emitter.Emit(EventChatFinished, nil)
	return answer, nil
}

// run drives model turns until one produces no tool calls. It has no
// iteration cap; only model errors escape.
func (s *Session) run(ctx context.Context) (string, error) {
	for {
		s.mu.Lock()
		model := s.config.Model
		autoConfirm := s.config.AutoConfirm
		messages := make([]llm.Message, len(s.history))
		copy(messages, s.history)
		s.mu.Unlock()

		s.emitter.Emit(EventStatus, map[string]any{"message": "thinking..."})

		stream, err := s.client.Stream(ctx, llm.Request{
			Model:      model,
			Messages:   messages,
			Tools:      s.registry.Definitions(),
			ToolChoice: "auto",
		})
		if err != nil {
			return "", err
		}

		acc := llm.NewStreamAccumulator()
		for ev := range stream {
			if ev.Type == llm.StreamTextDelta && ev.Text != "" {
				s.emitter.Emit(EventToken, map[string]any{"content": ev.Text})
			}
			acc.Add(ev)
		}
		if err := acc.Err(); err != nil {
			return "", err
		}

		text, calls := acc.Finalize()
		if len(calls) == 0 {
			s.append(llm.AssistantMessage(text))
			s.emitter.Emit(EventAssistantDone, map[string]any{"content": text})
			return text, nil
		}

		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = "call_" + uuid.New().String()[:8]
			}
		}

		s.append(llm.AssistantToolCallMessage(text, calls))
		results := s.dispatcher.Dispatch(ctx, calls, autoConfirm)
		for _, result := range results {
			s.append(llm.ToolMessage(result.ToolCallID, result.Output))
		}
	}
}

func (s *Session) append(msg llm.Message) {
	s.mu.Lock()
	s.history = append(s.history, msg)
	s.mu.Unlock()
}
