// Package llm provides a provider-agnostic chat-completion client used by
// the agent loop. It routes requests to provider adapters, retries transient
// failures with exponential backoff, and normalizes streaming output into a
// single fragment protocol that the rest of the system consumes.
//
// # Architecture
//
// The package is organized in three layers:
//
//   - Shared types: Message, ToolCall, Request, Response, and the
//     StreamEvent fragment protocol with its StreamAccumulator.
//   - Provider adapters: OpenAIAdapter speaks the chat-completions API
//     directly (github.com/sashabaranov/go-openai) and produces true
//     incremental tool-call fragments; GollmAdapter wraps
//     github.com/teilomillet/gollm for every other provider and degrades
//     to a single-fragment stream.
//   - Client: provider routing, retry policy, and structured logging.
//
// # Quick Start
//
//	client, err := llm.NewClientFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resp, err := client.Complete(ctx, llm.Request{
//	    Model:    "gpt-4.1-mini",
//	    Messages: []llm.Message{llm.UserMessage("Hello")},
//	})
//
// # Streaming
//
// Stream returns a channel of StreamEvent fragments. Feed them to a
// StreamAccumulator to reassemble the assistant text and any tool calls:
//
//	events, err := client.Stream(ctx, req)
//	acc := llm.NewStreamAccumulator()
//	for ev := range events {
//	    acc.Add(ev)
//	}
//	text, calls := acc.Finalize()
//
// Tool-call fragments arrive keyed by slot index. Fragments for the same
// slot concatenate their name and argument deltas; the identifier is
// assigned by whichever fragment carries it. Finalize returns the calls
// ordered by ascending slot index.
package llm
