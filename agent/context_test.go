package agent

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/modoki-agent/modoki/llm"
)

// summarizerStub is a ModelClient whose Complete is scripted; Stream is
// never used by the compactor.
type summarizerStub struct {
	completeFn func(llm.Request) (*llm.Response, error)
	calls      int
	lastReq    llm.Request
}

func (s *summarizerStub) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.calls++
	s.lastReq = req
	return s.completeFn(req)
}

func (s *summarizerStub) Stream(context.Context, llm.Request) (<-chan llm.StreamEvent, error) {
	return nil, errors.New("summarizerStub does not stream")
}

func TestTrimCeiling(t *testing.T) {
	messages := []llm.Message{llm.SystemMessage("sys")}
	for i := 1; i <= 250; i++ {
		messages = append(messages, llm.UserMessage(fmt.Sprintf("m%d", i)))
	}

	trimmed := Trim(messages, 200)
	if len(trimmed) != 200 {
		t.Fatalf("len = %d, want 200", len(trimmed))
	}
	if trimmed[0].Role != llm.RoleSystem {
		t.Errorf("first message role = %q", trimmed[0].Role)
	}
	// The last 199 of the 250 numbered messages survive: m52..m250.
	if trimmed[1].Content != "m52" {
		t.Errorf("first kept message = %q, want m52", trimmed[1].Content)
	}
	if trimmed[199].Content != "m250" {
		t.Errorf("last kept message = %q, want m250", trimmed[199].Content)
	}
}

func TestTrimUnderCeiling(t *testing.T) {
	messages := []llm.Message{llm.SystemMessage("sys"), llm.UserMessage("hello")}
	if got := Trim(messages, 200); len(got) != 2 {
		t.Errorf("len = %d, want 2 (unchanged)", len(got))
	}
	// Exactly at the ceiling is also left alone.
	messages = []llm.Message{llm.SystemMessage("sys")}
	for i := 0; i < 199; i++ {
		messages = append(messages, llm.UserMessage("x"))
	}
	if got := Trim(messages, 200); len(got) != 200 {
		t.Errorf("len = %d, want 200 (unchanged)", len(got))
	}
}

func TestCompactRewrite(t *testing.T) {
	messages := []llm.Message{llm.SystemMessage("sys")}
	for i := 1; len(messages) < 30; i++ {
		messages = append(messages, llm.UserMessage(fmt.Sprintf("u%d", i)))
		if len(messages) < 30 {
			messages = append(messages, llm.AssistantMessage(fmt.Sprintf("a%d", i)))
		}
	}
	recent := make([]llm.Message, 10)
	copy(recent, messages[20:])

	stub := &summarizerStub{completeFn: func(llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: "files were edited"}, nil
	}}
	c := NewCompactor(stub, "test-model", 10, discardLogger())

	compacted := c.Compact(context.Background(), messages)
	if len(compacted) != 13 {
		t.Fatalf("len = %d, want 13", len(compacted))
	}
	if compacted[0].Content != "sys" {
		t.Errorf("system message = %q", compacted[0].Content)
	}
	if compacted[1].Role != llm.RoleUser ||
		compacted[1].Content != "[Summary of the earlier conversation]\nfiles were edited" {
		t.Errorf("summary message = %+v", compacted[1])
	}
	if compacted[2].Role != llm.RoleAssistant {
		t.Errorf("acknowledgment role = %q", compacted[2].Role)
	}
	if !reflect.DeepEqual(compacted[3:], recent) {
		t.Error("recent tail was not preserved verbatim")
	}

	if stub.lastReq.Model != "test-model" {
		t.Errorf("summarizer model = %q", stub.lastReq.Model)
	}
	if stub.lastReq.MaxTokens != 500 {
		t.Errorf("summarizer MaxTokens = %d", stub.lastReq.MaxTokens)
	}
	digest := stub.lastReq.Messages[1].Content
	if !strings.Contains(digest, "[user] u1") || !strings.Contains(digest, "[assistant] a1") {
		t.Errorf("digest missing previews: %q", digest)
	}
}

func TestCompactPreviewTruncation(t *testing.T) {
	long := strings.Repeat("x", 400)
	messages := []llm.Message{llm.SystemMessage("sys"), llm.UserMessage(long)}
	for i := 0; i < 10; i++ {
		messages = append(messages, llm.UserMessage("recent"))
	}

	stub := &summarizerStub{completeFn: func(llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: "ok"}, nil
	}}
	c := NewCompactor(stub, "test-model", 10, discardLogger())
	c.Compact(context.Background(), messages)

	digest := stub.lastReq.Messages[1].Content
	if !strings.Contains(digest, strings.Repeat("x", 300)) {
		t.Error("digest missing the 300-char preview")
	}
	if strings.Contains(digest, strings.Repeat("x", 301)) {
		t.Error("preview exceeds 300 chars")
	}
}

func TestCompactFallbackOnSummarizerError(t *testing.T) {
	long := strings.Repeat("y", 400)
	messages := []llm.Message{
		llm.SystemMessage("sys"),
		llm.UserMessage(long),
		llm.UserMessage(long),
		llm.UserMessage(long),
	}
	for i := 0; i < 10; i++ {
		messages = append(messages, llm.UserMessage("recent"))
	}

	stub := &summarizerStub{completeFn: func(llm.Request) (*llm.Response, error) {
		return nil, errors.New("rate limited")
	}}
	c := NewCompactor(stub, "test-model", 10, discardLogger())

	compacted := c.Compact(context.Background(), messages)
	if len(compacted) != 13 {
		t.Fatalf("len = %d, want 13", len(compacted))
	}
	summary := strings.TrimPrefix(compacted[1].Content, "[Summary of the earlier conversation]\n")
	if !strings.HasSuffix(summary, "...") {
		t.Errorf("fallback summary should end with ellipsis: %q", summary[len(summary)-10:])
	}
	if len(summary) != 503 {
		t.Errorf("fallback summary length = %d, want 500 + ellipsis", len(summary))
	}
	if !strings.HasPrefix(summary, "[user] yyyy") {
		t.Errorf("fallback summary should start with the first preview: %q", summary[:20])
	}
}

func TestCompactSmallConversationUntouched(t *testing.T) {
	messages := []llm.Message{llm.SystemMessage("sys")}
	for i := 0; i < 10; i++ {
		messages = append(messages, llm.UserMessage("x"))
	}

	stub := &summarizerStub{completeFn: func(llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: "unused"}, nil
	}}
	c := NewCompactor(stub, "test-model", 10, discardLogger())

	if got := c.Compact(context.Background(), messages); len(got) != 11 {
		t.Errorf("len = %d, want 11 (unchanged)", len(got))
	}
	if stub.calls != 0 {
		t.Errorf("summarizer called %d times, want 0", stub.calls)
	}
}

func TestCompactNoSummarizableMiddle(t *testing.T) {
	messages := []llm.Message{
		llm.SystemMessage("sys"),
		llm.ToolMessage("call_1", "tool output"),
		llm.ToolMessage("call_2", "tool output"),
	}
	for i := 0; i < 10; i++ {
		messages = append(messages, llm.UserMessage("recent"))
	}

	stub := &summarizerStub{completeFn: func(llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: "unused"}, nil
	}}
	c := NewCompactor(stub, "test-model", 10, discardLogger())

	if got := c.Compact(context.Background(), messages); len(got) != len(messages) {
		t.Errorf("len = %d, want %d (unchanged)", len(got), len(messages))
	}
	if stub.calls != 0 {
		t.Errorf("summarizer called %d times, want 0", stub.calls)
	}
}

func TestEstimateTokens(t *testing.T) {
	messages := []llm.Message{
		llm.UserMessage("12345678"), // 2
		llm.UserImageMessage("abcd", "data:image/png;base64,AAAA"), // 1 + 1000
		llm.AssistantToolCallMessage("", []llm.ToolCall{
			{ID: "c1", Name: "grep", Arguments: "12345678"}, // 2
		}),
	}
	if got := EstimateTokens(messages); got != 1005 {
		t.Errorf("EstimateTokens = %d, want 1005", got)
	}
}
