// Package agent implements the orchestration engine: the conversation
// loop that streams model turns, dispatches the resulting tool calls
// under a safe/destructive concurrency policy, and bounds history
// growth through trimming and compaction.
//
// The package is organized around these pieces:
//
//   - Session: owns one conversation, runs the turn loop, and rejects
//     concurrent submissions while a turn is in progress.
//   - Dispatcher: partitions one turn's tool calls into safe calls
//     (bounded worker pool) and destructive calls (serial, each behind
//     a confirmation round-trip), returning results aligned to input
//     order.
//   - Trim / Compactor: the two history-bounding operations; Trim drops
//     oldest messages unconditionally, Compactor summarizes them
//     through an auxiliary model call.
//   - Emitter: typed event stream consumed by the REPL and the
//     stdio/WebSocket bridges.
//
// # Quick start
//
//	client, _ := llm.NewClientFromEnv()
//	registry := tools.NewBuiltinRegistry(tools.BuiltinOptions{})
//	env := tools.NewLocal("")
//	session := agent.NewSession(client, registry, env, nil)
//	defer session.Close()
//
//	go func() {
//	    for ev := range session.Events() {
//	        fmt.Printf("[%s] %v\n", ev.Kind, ev.Data)
//	    }
//	}()
//	answer, err := session.Submit(ctx, "Summarize README.md")
package agent
