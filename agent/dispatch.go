package agent

import (
	"context"
	"log/slog"
	"sync"

	"github.com/modoki-agent/modoki/confirm"
	"github.com/modoki-agent/modoki/llm"
	"github.com/modoki-agent/modoki/tools"
)

// maxConfirmPreviewChars bounds the preview attached to a confirmation
// request.
const maxConfirmPreviewChars = 2000

// skippedResult is what the model sees in place of a denied call's output.
const skippedResult = "[skipped] cancelled by the user"

// ResultStatus classifies the outcome of one tool call.
type ResultStatus string

const (
	StatusOK      ResultStatus = "ok"
	StatusError   ResultStatus = "error"
	StatusSkipped ResultStatus = "skipped"
)

// ToolResult is the outcome of one dispatched tool call. Output is the
// truncated text that enters the conversation; the untruncated output
// travels on the event stream only.
type ToolResult struct {
	ToolCallID string
	Name       string
	Arguments  map[string]any
	Output     string
	Status     ResultStatus
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Workers bounds concurrent safe-call execution (<= 0 uses 4).
	Workers int
	// CharLimits and LineLimits override the per-tool output truncation.
	CharLimits map[string]int
	LineLimits map[string]int
	// Emitter receives tool_call and tool_result events. Optional.
	Emitter *Emitter
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Dispatcher executes the tool calls of one model turn. Safe calls run
// concurrently on a bounded worker pool; destructive calls run one at a
// time in input order, each behind a confirmation round-trip. Neither
// partition waits for the other, and the returned slice is indexed by
// input position regardless of completion order.
type Dispatcher struct {
	registry   *tools.Registry
	env        tools.Environment
	gateway    confirm.Gateway
	workers    int
	charLimits map[string]int
	lineLimits map[string]int
	emitter    *Emitter
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher. A nil gateway denies every
// destructive call that reaches confirmation.
func NewDispatcher(registry *tools.Registry, env tools.Environment, gateway confirm.Gateway, opts DispatcherOptions) *Dispatcher {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:   registry,
		env:        env,
		gateway:    gateway,
		workers:    workers,
		charLimits: opts.CharLimits,
		lineLimits: opts.LineLimits,
		emitter:    opts.Emitter,
		logger:     logger,
	}
}

// Dispatch executes calls and returns one ToolResult per call, aligned
// to the input index. A call never aborts its siblings: execution
// failures become StatusError results, denied confirmations become
// StatusSkipped results with no execution attempt, and malformed
// argument payloads degrade to an empty argument map.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []llm.ToolCall, autoConfirm bool) []ToolResult {
	results := make([]ToolResult, len(calls))
	parsed := make([]map[string]any, len(calls))
	var safe, destructive []int

	for i, call := range calls {
		args, err := tools.ParseArguments(call.Arguments)
		if err != nil {
			d.logger.Warn("malformed tool arguments, using empty arguments",
				"tool", call.Name, "error", err)
			args = map[string]any{}
		}
		parsed[i] = args

		if d.registry.IsDestructive(call.Name) && !autoConfirm {
			destructive = append(destructive, i)
		} else {
			safe = append(safe, i)
		}

		d.emit(EventToolCall, map[string]any{
			"id":   call.ID,
			"name": call.Name,
			"args": args,
		})
	}

	// Safe calls go to the pool first so they run while the destructive
	// ones below wait on confirmation.
	var wg sync.WaitGroup
	sem := make(chan struct{}, d.workers)
	for _, idx := range safe {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = d.execute(ctx, calls[i], parsed[i])
		}(idx)
	}

	for _, i := range destructive {
		results[i] = d.confirmAndExecute(ctx, calls[i], parsed[i])
	}

	wg.Wait()
	return results
}

func (d *Dispatcher) confirmAndExecute(ctx context.Context, call llm.ToolCall, args map[string]any) ToolResult {
	preview := d.registry.Preview(call.Name, args, d.env)
	if len(preview) > maxConfirmPreviewChars {
		preview = preview[:maxConfirmPreviewChars] + "\n... (preview truncated)"
	}

	approved := false
	if d.gateway != nil {
		approved = d.gateway.Confirm(ctx, confirm.Request{
			Tool:      call.Name,
			Arguments: args,
			Preview:   preview,
		})
	} else {
		d.logger.Warn("no confirmation gateway configured, denying destructive call", "tool", call.Name)
	}

	if !approved {
		result := ToolResult{
			ToolCallID: call.ID,
			Name:       call.Name,
			Arguments:  args,
			Output:     skippedResult,
			Status:     StatusSkipped,
		}
		d.emitResult(result, result.Output)
		return result
	}
	return d.execute(ctx, call, args)
}

func (d *Dispatcher) execute(ctx context.Context, call llm.ToolCall, args map[string]any) ToolResult {
	result := ToolResult{ToolCallID: call.ID, Name: call.Name, Arguments: args}

	output, err := d.registry.Execute(ctx, d.env, call.Name, args)
	if err != nil {
		result.Status = StatusError
		result.Output = "[error] " + err.Error()
		d.emitResult(result, result.Output)
		return result
	}

	result.Status = StatusOK
	result.Output = tools.TruncateToolOutput(output, call.Name, d.charLimits, d.lineLimits)
	d.emitResult(result, output)
	return result
}

func (d *Dispatcher) emitResult(result ToolResult, fullOutput string) {
	d.emit(EventToolResult, map[string]any{
		"id":     result.ToolCallID,
		"name":   result.Name,
		"result": fullOutput,
		"status": string(result.Status),
	})
}

func (d *Dispatcher) emit(kind EventKind, data map[string]any) {
	if d.emitter != nil {
		d.emitter.Emit(kind, data)
	}
}
