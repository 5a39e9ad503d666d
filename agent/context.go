package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modoki-agent/modoki/llm"
)

const (
	// compactPreviewChars bounds each message preview in the digest sent
	// to the summarizer.
	compactPreviewChars = 300
	// compactFallbackChars bounds the fallback summary used when the
	// summarization call fails.
	compactFallbackChars = 500
	// compactMaxTokens caps the summarizer's answer.
	compactMaxTokens = 500
	// imageTokenEstimate is the flat per-image cost used by EstimateTokens.
	imageTokenEstimate = 1000
)

// Trim enforces a hard message-count ceiling: when the conversation
// exceeds maxMessages, the system message plus the most recent
// maxMessages-1 messages survive and everything older is discarded.
// Under the ceiling the input is returned unchanged.
func Trim(messages []llm.Message, maxMessages int) []llm.Message {
	if maxMessages <= 0 || len(messages) <= maxMessages {
		return messages
	}
	trimmed := make([]llm.Message, 0, maxMessages)
	trimmed = append(trimmed, messages[0])
	trimmed = append(trimmed, messages[len(messages)-(maxMessages-1):]...)
	return trimmed
}

const summaryInstruction = "Summarize the conversation history below concisely. " +
	"Preserve the important details: file paths, command results, and what the user is trying to accomplish."

// Compactor rewrites a long conversation as system message, a synthetic
// summary exchange, and the untouched recent tail. The summary comes
// from an auxiliary model call; when that call fails the compactor falls
// back to a truncated concatenation of the message previews instead of
// aborting, so Compact never errors.
type Compactor struct {
	client     ModelClient
	model      string
	keepRecent int
	logger     *slog.Logger
}

// NewCompactor creates a Compactor summarizing with the given model and
// keeping the last keepRecent messages verbatim (<= 0 uses 10).
func NewCompactor(client ModelClient, model string, keepRecent int, logger *slog.Logger) *Compactor {
	if keepRecent <= 0 {
		keepRecent = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{client: client, model: model, keepRecent: keepRecent, logger: logger}
}

// Compact returns the compacted conversation. Conversations with no
// middle span, or whose middle span has no summarizable text, are
// returned unchanged. The trailing keepRecent messages of the result are
// always the original messages, byte for byte.
func (c *Compactor) Compact(ctx context.Context, messages []llm.Message) []llm.Message {
	if len(messages) <= c.keepRecent+1 {
		return messages
	}

	system := messages[0]
	middle := messages[1 : len(messages)-c.keepRecent]
	recent := messages[len(messages)-c.keepRecent:]

	var parts []string
	for _, m := range middle {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			continue
		}
		text := m.Text()
		if text == "" {
			continue
		}
		if len(text) > compactPreviewChars {
			text = text[:compactPreviewChars]
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", m.Role, text))
	}
	if len(parts) == 0 {
		return messages
	}
	digest := strings.Join(parts, "\n")

	summary := c.summarize(ctx, digest)

	compacted := make([]llm.Message, 0, len(recent)+3)
	compacted = append(compacted,
		system,
		llm.UserMessage("[Summary of the earlier conversation]\n"+summary),
		llm.AssistantMessage("Understood. I have the context of the earlier conversation. Let's continue."),
	)
	compacted = append(compacted, recent...)
	return compacted
}

func (c *Compactor) summarize(ctx context.Context, digest string) string {
	resp, err := c.client.Complete(ctx, llm.Request{
		Model: c.model,
		Messages: []llm.Message{
			llm.SystemMessage(summaryInstruction),
			llm.UserMessage(digest),
		},
		MaxTokens: compactMaxTokens,
	})
	if err != nil {
		c.logger.Warn("summarization failed, falling back to message previews", "error", err)
		if len(digest) > compactFallbackChars {
			digest = digest[:compactFallbackChars]
		}
		return digest + "..."
	}
	if resp.Content == "" {
		return "(no summary)"
	}
	return resp.Content
}

// EstimateTokens gives a rough token count for a conversation: one token
// per four characters of text and tool-call arguments, a flat cost per
// image.
func EstimateTokens(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		if len(m.Parts) > 0 {
			for _, p := range m.Parts {
				switch p.Type {
				case llm.PartTypeText:
					total += len(p.Text) / 4
				case llm.PartTypeImageURL:
					total += imageTokenEstimate
				}
			}
		} else {
			total += len(m.Content) / 4
		}
		for _, tc := range m.ToolCalls {
			total += len(tc.Arguments) / 4
		}
	}
	return total
}
