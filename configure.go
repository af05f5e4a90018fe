package unillm

import (
	"context"
	"sync"

	"github.com/unillm/unillm/internal/config"
	"github.com/unillm/unillm/pkg/types"
)

// The package-level Ask, Stream and Chat run against a process-wide
// default client. It is built lazily on first use from files and the
// environment, and replaced wholesale by Configure; the settings
// snapshot behind it lives in a read/replace holder so concurrent
// readers never see a half-applied reconfiguration.
var (
	defaultMu     sync.RWMutex
	defaultClient *Client
	defaultHolder = config.NewHolder()
)

// Configure replaces the process-wide configuration behind the
// package-level entry points. Safe to call at any time; requests
// already in flight finish against the configuration they started
// with. Construction errors (bad settings, unreachable adapters)
// surface here rather than on the next request.
func Configure(opts ...Option) error {
	client, err := New(context.Background(), opts...)
	if err != nil {
		return err
	}

	defaultMu.Lock()
	defaultClient = client
	defaultMu.Unlock()
	defaultHolder.Replace(client.Settings())
	return nil
}

// Default returns the process-wide client, building it from files and
// the environment on first use.
func Default() (*Client, error) {
	defaultMu.RLock()
	c := defaultClient
	defaultMu.RUnlock()
	if c != nil {
		return c, nil
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		c, err := New(context.Background())
		if err != nil {
			return nil, err
		}
		defaultClient = c
		defaultHolder.Replace(c.Settings())
	}
	return defaultClient, nil
}

// DefaultSettings returns the settings snapshot behind the package-level
// entry points, resolving the default client first if needed.
func DefaultSettings() (types.Settings, error) {
	if s, ok := defaultHolder.Current(); ok {
		return s, nil
	}
	c, err := Default()
	if err != nil {
		return types.Settings{}, err
	}
	return c.Settings(), nil
}

// Ask runs one stateless request against the process-wide configuration.
func Ask(ctx context.Context, prompt string, opts ...RequestOption) (*types.AIResponse, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	return c.Ask(ctx, prompt, opts...)
}

// Stream runs one stateless streaming request against the process-wide
// configuration.
func Stream(ctx context.Context, prompt string, opts ...RequestOption) (*ResponseStream, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	return c.Stream(ctx, prompt, opts...), nil
}

// Chat opens a multi-turn session against the process-wide
// configuration. model may be empty for the configured default.
func Chat(model, system string) (*ChatSession, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	return c.Chat(model, system), nil
}
