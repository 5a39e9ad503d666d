package agent

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4.1-mini"

// SessionConfig holds the tunable parameters of a session.
type SessionConfig struct {
	// Model identifies the chat model for turn and summarization calls.
	Model string `json:"model"`

	// SystemPrompt becomes message index 0 of the conversation. Empty
	// means a minimal prompt built from the execution environment.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// MaxToolWorkers bounds how many safe tool calls run concurrently.
	MaxToolWorkers int `json:"max_tool_workers"`

	// TrimLimit is the message-count ceiling enforced before each
	// submission: the system message plus the most recent TrimLimit-1
	// messages survive.
	TrimLimit int `json:"trim_limit"`

	// CompactKeepRecent is how many trailing messages compaction leaves
	// untouched.
	CompactKeepRecent int `json:"compact_keep_recent"`

	// AutoConfirm executes destructive tool calls without confirmation.
	AutoConfirm bool `json:"auto_confirm"`

	// ToolCharLimits and ToolLineLimits override the default per-tool
	// output truncation applied before results enter the conversation.
	ToolCharLimits map[string]int `json:"tool_char_limits,omitempty"`
	ToolLineLimits map[string]int `json:"tool_line_limits,omitempty"`
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Model:             DefaultModel,
		MaxToolWorkers:    4,
		TrimLimit:         200,
		CompactKeepRecent: 10,
	}
}

// normalize replaces zero values with defaults so a partially filled
// config cannot disable trimming or the worker pool.
func (c *SessionConfig) normalize() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxToolWorkers <= 0 {
		c.MaxToolWorkers = 4
	}
	if c.TrimLimit <= 0 {
		c.TrimLimit = 200
	}
	if c.CompactKeepRecent <= 0 {
		c.CompactKeepRecent = 10
	}
}
