package llm

import "strings"

// ModelInfo describes a known model.
type ModelInfo struct {
	ID             string `json:"id"`
	Provider       string `json:"provider"`
	ContextWindow  int    `json:"context_window"`
	SupportsVision bool   `json:"supports_vision"`
}

// Models is the built-in model catalog. It is advisory: unknown models
// are passed through to the provider untouched.
var Models = []ModelInfo{
	{ID: "gpt-4.1", Provider: "openai", ContextWindow: 1047576, SupportsVision: true},
	{ID: "gpt-4.1-mini", Provider: "openai", ContextWindow: 1047576, SupportsVision: true},
	{ID: "gpt-4o", Provider: "openai", ContextWindow: 128000, SupportsVision: true},
	{ID: "gpt-4o-mini", Provider: "openai", ContextWindow: 128000, SupportsVision: true},
	{ID: "o4-mini", Provider: "openai", ContextWindow: 200000, SupportsVision: true},
	{ID: "claude-sonnet-4-5", Provider: "anthropic", ContextWindow: 200000, SupportsVision: true},
	{ID: "claude-opus-4-6", Provider: "anthropic", ContextWindow: 200000, SupportsVision: true},
	{ID: "gemini-3-pro-preview", Provider: "gemini", ContextWindow: 1048576, SupportsVision: true},
	{ID: "gemini-3-flash-preview", Provider: "gemini", ContextWindow: 1048576, SupportsVision: true},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
	}
	return nil
}

// InferProvider guesses the provider from a model identifier. It checks
// the catalog first, then falls back to prefix conventions. Returns ""
// when nothing matches.
func InferProvider(model string) string {
	if info := GetModelInfo(model); info != nil {
		return info.Provider
	}
	switch {
	case strings.HasPrefix(model, "gpt-"),
		strings.HasPrefix(model, "chatgpt-"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"):
		return "openai"
	case strings.HasPrefix(model, "claude"):
		return "anthropic"
	case strings.HasPrefix(model, "gemini"):
		return "gemini"
	}
	return ""
}

// DefaultModel returns the default model identifier for a provider.
func DefaultModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4.1-mini"
	case "anthropic":
		return "claude-sonnet-4-5"
	case "gemini":
		return "gemini-3-flash-preview"
	}
	return ""
}
