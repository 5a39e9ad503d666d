package llm

import (
	"sort"
	"strings"
)

// StreamEventType identifies the kind of a stream fragment.
type StreamEventType string

const (
	// StreamTextDelta carries an incremental chunk of assistant text.
	StreamTextDelta StreamEventType = "text_delta"
	// StreamToolCallDelta carries an incremental fragment of a tool call.
	StreamToolCallDelta StreamEventType = "tool_call_delta"
	// StreamFinish marks the end of a successful stream.
	StreamFinish StreamEventType = "finish"
	// StreamErrorEvent reports a mid-stream failure. The stream channel
	// is closed after this event.
	StreamErrorEvent StreamEventType = "error"
)

// StreamEvent is one fragment of a streaming model response.
type StreamEvent struct {
	Type         StreamEventType
	Text         string         // StreamTextDelta
	ToolCall     *ToolCallDelta // StreamToolCallDelta
	FinishReason string         // StreamFinish
	Usage        *Usage         // StreamFinish, when the provider reports it
	Err          error          // StreamErrorEvent
}

// ToolCallDelta is an incremental fragment of a single tool call. Index
// is the slot the provider assigned; fragments sharing an index belong
// to the same call. ID is set by whichever fragment carries it; Name and
// Arguments are partial strings to be concatenated in arrival order.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// StreamAccumulator reassembles a fragment stream into the final
// assistant text and an ordered list of complete tool calls.
//
// Providers interleave fragments for different calls arbitrarily, and a
// slot's first fragment is not guaranteed to arrive before another
// slot's last. The accumulator keys state by slot index, assigns the ID
// when a fragment provides one, and concatenates name and argument
// deltas without ever overwriting previously received pieces.
//
// It is not safe for concurrent use; feed it from the goroutine that
// drains the stream channel.
type StreamAccumulator struct {
	text         strings.Builder
	slots        map[int]*toolCallSlot
	finishReason string
	usage        *Usage
	err          error
}

type toolCallSlot struct {
	id   string
	name strings.Builder
	args strings.Builder
}

// NewStreamAccumulator returns an empty accumulator.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{slots: make(map[int]*toolCallSlot)}
}

// Add folds one stream event into the accumulator.
func (a *StreamAccumulator) Add(ev StreamEvent) {
	switch ev.Type {
	case StreamTextDelta:
		a.text.WriteString(ev.Text)
	case StreamToolCallDelta:
		if ev.ToolCall != nil {
			a.addToolCallDelta(*ev.ToolCall)
		}
	case StreamFinish:
		if ev.FinishReason != "" {
			a.finishReason = ev.FinishReason
		}
		if ev.Usage != nil {
			a.usage = ev.Usage
		}
	case StreamErrorEvent:
		a.err = ev.Err
	}
}

func (a *StreamAccumulator) addToolCallDelta(d ToolCallDelta) {
	slot, ok := a.slots[d.Index]
	if !ok {
		slot = &toolCallSlot{}
		a.slots[d.Index] = slot
	}
	if d.ID != "" {
		slot.id = d.ID
	}
	slot.name.WriteString(d.Name)
	slot.args.WriteString(d.Arguments)
}

// Text returns the assistant text accumulated so far.
func (a *StreamAccumulator) Text() string {
	return a.text.String()
}

// FinishReason returns the finish reason reported by the provider, if any.
func (a *StreamAccumulator) FinishReason() string {
	return a.finishReason
}

// Usage returns the token usage reported by the provider, if any.
func (a *StreamAccumulator) Usage() *Usage {
	return a.usage
}

// Err returns the mid-stream error, if one was recorded.
func (a *StreamAccumulator) Err() error {
	return a.err
}

// Finalize returns the accumulated assistant text and the completed tool
// calls ordered by ascending slot index. An empty slice means the model
// requested no tools this turn.
func (a *StreamAccumulator) Finalize() (string, []ToolCall) {
	if len(a.slots) == 0 {
		return a.text.String(), nil
	}
	indices := make([]int, 0, len(a.slots))
	for idx := range a.slots {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	calls := make([]ToolCall, 0, len(indices))
	for _, idx := range indices {
		slot := a.slots[idx]
		calls = append(calls, ToolCall{
			ID:        slot.id,
			Name:      slot.name.String(),
			Arguments: slot.args.String(),
		})
	}
	return a.text.String(), calls
}
