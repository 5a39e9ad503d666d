package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Client is the core routing layer. It holds registered provider
// adapters, routes requests by provider identifier (explicit, default,
// or inferred from the model name), and retries transient failures
// according to its RetryPolicy.
type Client struct {
	providers       map[string]ProviderAdapter
	defaultProvider string
	retry           RetryPolicy
	logger          *slog.Logger
	mu              sync.RWMutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers a provider adapter.
func WithProvider(name string, adapter ProviderAdapter) ClientOption {
	return func(c *Client) {
		c.providers[name] = adapter
	}
}

// WithDefaultProvider sets the default provider name.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = policy
	}
}

// WithLogger sets the structured logger used for request and retry logging.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]ProviderAdapter),
		retry:     DefaultRetryPolicy(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// If no default and exactly one provider, use it.
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c
}

// RegisterProvider adds a provider adapter to the client.
func (c *Client) RegisterProvider(name string, adapter ProviderAdapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = adapter
	if c.defaultProvider == "" {
		c.defaultProvider = name
	}
}

// Providers returns the names of all registered provider adapters.
func (c *Client) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	return names
}

// resolveProvider determines which provider adapter handles a request.
func (c *Client) resolveProvider(req Request) (ProviderAdapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := req.Provider
	if name == "" {
		if inferred := InferProvider(req.Model); inferred != "" {
			if _, ok := c.providers[inferred]; ok {
				name = inferred
			}
		}
	}
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "no provider specified and no default provider configured",
		}}
	}

	adapter, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("provider %q is not registered", name),
		}}
	}
	return adapter, nil
}

// retryPolicy returns the client policy with retry logging attached.
func (c *Client) retryPolicy(req Request) RetryPolicy {
	policy := c.retry
	onRetry := policy.OnRetry
	policy.OnRetry = func(err error, retry int, delay time.Duration) {
		c.logger.Warn("model call failed, retrying",
			"model", req.Model,
			"retry", retry,
			"delay", delay,
			"error", err)
		if onRetry != nil {
			onRetry(err, retry, delay)
		}
	}
	return policy
}

// Complete sends a blocking request to the resolved provider, retrying
// transient failures.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	adapter, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = adapter.Name()
	}

	c.logger.Debug("model call", "provider", req.Provider, "model", req.Model, "messages", len(req.Messages))
	return Retry(ctx, c.retryPolicy(req), func(ctx context.Context) (*Response, error) {
		return adapter.Complete(ctx, req)
	})
}

// Stream opens a streaming request to the resolved provider. Opening the
// stream is retried on transient failure; once fragments are flowing,
// a mid-stream failure is delivered as a StreamErrorEvent and is not
// retried here.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	adapter, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = adapter.Name()
	}

	c.logger.Debug("model stream", "provider", req.Provider, "model", req.Model, "messages", len(req.Messages))
	return Retry(ctx, c.retryPolicy(req), func(ctx context.Context) (<-chan StreamEvent, error) {
		return adapter.Stream(ctx, req)
	})
}

// Close releases resources held by all registered providers.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var firstErr error
	for _, adapter := range c.providers {
		if closer, ok := adapter.(Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// NewClientFromEnv creates a Client by scanning environment variables
// for API keys. OPENAI_API_KEY registers the native OpenAI adapter
// (honoring OPENAI_BASE_URL); ANTHROPIC_API_KEY and GEMINI_API_KEY
// register gollm-backed adapters. An error is returned when no provider
// is configured.
func NewClientFromEnv(opts ...ClientOption) (*Client, error) {
	c := NewClient(opts...)

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		adapter := NewOpenAIAdapter(key, WithBaseURL(os.Getenv("OPENAI_BASE_URL")))
		c.RegisterProvider("openai", adapter)
	}
	for _, provider := range []string{"anthropic", "gemini"} {
		adapter, err := NewGollmAdapter(provider, "")
		if err == nil {
			c.RegisterProvider(provider, adapter)
		}
	}

	if len(c.Providers()) == 0 {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "no provider configured: set OPENAI_API_KEY (or ANTHROPIC_API_KEY, GEMINI_API_KEY)",
		}}
	}
	return c, nil
}
