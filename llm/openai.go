package llm

import (
	"context"
	"errors"
	"io"
	"net"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter speaks the OpenAI chat-completions API directly via
// github.com/sashabaranov/go-openai. Unlike the gollm-backed adapters it
// supports true incremental streaming, emitting indexed tool-call
// fragments exactly as the wire delivers them.
type OpenAIAdapter struct {
	client       *openai.Client
	defaultModel string
}

// OpenAIOption configures an OpenAIAdapter.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	baseURL      string
	defaultModel string
}

// WithBaseURL points the adapter at an OpenAI-compatible endpoint.
// An empty URL keeps the official API endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) {
		c.baseURL = url
	}
}

// WithDefaultModel sets the model used when a request does not name one.
func WithDefaultModel(model string) OpenAIOption {
	return func(c *openAIConfig) {
		c.defaultModel = model
	}
}

// NewOpenAIAdapter creates an adapter authenticated with the given API key.
func NewOpenAIAdapter(apiKey string, opts ...OpenAIOption) *OpenAIAdapter {
	cfg := openAIConfig{defaultModel: DefaultModel("openai")}
	for _, opt := range opts {
		opt(&cfg)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.baseURL != "" {
		clientCfg.BaseURL = cfg.baseURL
	}
	return &OpenAIAdapter{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.defaultModel,
	}
}

// Name returns "openai".
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// Complete sends a blocking chat-completion request.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := a.client.CreateChatCompletion(ctx, a.buildRequest(req, false))
	if err != nil {
		return nil, translateOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &StreamError{SDKError: SDKError{Message: "openai response contained no choices"}}
	}

	choice := resp.Choices[0]
	out := &Response{
		ID:           resp.ID,
		Provider:     "openai",
		Model:        resp.Model,
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// Stream opens a streaming chat-completion request and converts the
// provider's chunk sequence into StreamEvent fragments. Tool-call deltas
// keep their slot index; reassembly is the consumer's job.
func (a *OpenAIAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	stream, err := a.client.CreateChatCompletionStream(ctx, a.buildRequest(req, true))
	if err != nil {
		return nil, translateOpenAIError(err)
	}

	events := make(chan StreamEvent, 64)
	go func() {
		defer close(events)
		defer stream.Close()

		var finishReason string
		var usage *Usage
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				send(ctx, events, StreamEvent{
					Type:         StreamFinish,
					FinishReason: finishReason,
					Usage:        usage,
				})
				return
			}
			if err != nil {
				send(ctx, events, StreamEvent{Type: StreamErrorEvent, Err: translateOpenAIError(err)})
				return
			}

			if chunk.Usage != nil {
				usage = &Usage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
					TotalTokens:      chunk.Usage.TotalTokens,
				}
			}
			for _, choice := range chunk.Choices {
				if choice.FinishReason != "" {
					finishReason = string(choice.FinishReason)
				}
				if choice.Delta.Content != "" {
					if !send(ctx, events, StreamEvent{Type: StreamTextDelta, Text: choice.Delta.Content}) {
						return
					}
				}
				for _, tc := range choice.Delta.ToolCalls {
					idx := 0
					if tc.Index != nil {
						idx = *tc.Index
					}
					ev := StreamEvent{Type: StreamToolCallDelta, ToolCall: &ToolCallDelta{
						Index:     idx,
						ID:        tc.ID,
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					}}
					if !send(ctx, events, ev) {
						return
					}
				}
			}
		}
	}()
	return events, nil
}

func send(ctx context.Context, ch chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (a *OpenAIAdapter) buildRequest(req Request, stream bool) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	out := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  toOpenAIMessages(req.Messages),
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	if req.ToolChoice != "" {
		out.ToolChoice = req.ToolChoice
	}
	if stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return out
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			ToolCallID: m.ToolCallID,
		}
		if len(m.Parts) > 0 {
			for _, p := range m.Parts {
				switch p.Type {
				case PartTypeText:
					om.MultiContent = append(om.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeText,
						Text: p.Text,
					})
				case PartTypeImageURL:
					if p.ImageURL != nil {
						om.MultiContent = append(om.MultiContent, openai.ChatMessagePart{
							Type:     openai.ChatMessagePartTypeImageURL,
							ImageURL: &openai.ChatMessageImageURL{URL: p.ImageURL.URL},
						})
					}
				}
			}
		} else {
			om.Content = m.Content
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, om)
	}
	return out
}

// translateOpenAIError maps go-openai errors onto the package error
// taxonomy so retry classification works uniformly across adapters.
func translateOpenAIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if s, ok := apiErr.Code.(string); ok {
			code = s
		}
		return ErrorFromStatusCode(apiErr.HTTPStatusCode, apiErr.Message, "openai", code, nil, nil)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ErrorFromStatusCode(reqErr.HTTPStatusCode, reqErr.Error(), "openai", "", nil, nil)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &RequestTimeoutError{SDKError: SDKError{Message: "openai request timed out", Cause: err}}
	}
	if errors.Is(err, context.Canceled) {
		return &AbortError{SDKError: SDKError{Message: "openai request cancelled", Cause: err}}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &RequestTimeoutError{SDKError: SDKError{Message: "openai request timed out", Cause: err}}
		}
		return &NetworkError{SDKError: SDKError{Message: "openai connection failed", Cause: err}}
	}
	return &SDKError{Message: "openai request failed", Cause: err}
}
