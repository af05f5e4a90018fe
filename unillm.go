package unillm

import (
	"context"
	"fmt"
	"time"

	"github.com/unillm/unillm/internal/backend"
	"github.com/unillm/unillm/internal/catalog"
	"github.com/unillm/unillm/internal/config"
	"github.com/unillm/unillm/internal/logging"
	"github.com/unillm/unillm/internal/orchestrator"
	"github.com/unillm/unillm/internal/retry"
	"github.com/unillm/unillm/internal/route"
	"github.com/unillm/unillm/internal/session"
	"github.com/unillm/unillm/internal/tool"
	"github.com/unillm/unillm/internal/tool/builtin"
	"github.com/unillm/unillm/pkg/types"
)

// Client is the library entry point. One client carries the resolved
// configuration, model catalog, backend adapters and tool registry; it
// is safe for concurrent use.
type Client struct {
	settings types.Settings
	catalog  *catalog.Registry
	backends *backend.Registry
	tools    *tool.Registry
	orch     *orchestrator.Orchestrator
}

// Option adjusts client construction.
type Option func(*clientOptions)

type clientOptions struct {
	settings    *types.Settings
	workdir     string
	overrides   []func(*types.Settings)
	extraTools  []tool.Definition
	noBuiltins  bool
	noAdapters  bool
	rawBackends []struct {
		b        backend.Backend
		priority int
	}
}

// WithSettings supplies fully-resolved settings, skipping file and
// environment loading entirely. Programmatic settings have the highest
// precedence.
func WithSettings(s types.Settings) Option {
	return func(o *clientOptions) { o.settings = &s }
}

// WithConfigDir sets the directory searched for unillm.yaml, unillm.json
// and .env. Defaults to the process working directory.
func WithConfigDir(dir string) Option {
	return func(o *clientOptions) { o.workdir = dir }
}

// WithDefaultModel overrides the default model or @alias after loading.
func WithDefaultModel(ref string) Option {
	return func(o *clientOptions) {
		o.overrides = append(o.overrides, func(s *types.Settings) { s.DefaultModel = ref })
	}
}

// WithFallbackOrder overrides the backend fallback order after loading.
func WithFallbackOrder(names ...string) Option {
	return func(o *clientOptions) {
		o.overrides = append(o.overrides, func(s *types.Settings) { s.FallbackOrder = names })
	}
}

// WithTool registers an additional tool at construction.
func WithTool(info types.ToolInfo, run tool.Func) Option {
	return func(o *clientOptions) {
		o.extraTools = append(o.extraTools, tool.Definition{ToolInfo: info, Run: run})
	}
}

// WithoutBuiltinTools skips registering the stock tool set.
func WithoutBuiltinTools() Option {
	return func(o *clientOptions) { o.noBuiltins = true }
}

// WithBackend registers a custom backend adapter in addition to the
// configured ones. Lower priority sorts earlier.
func WithBackend(b backend.Backend, priority int) Option {
	return func(o *clientOptions) {
		o.rawBackends = append(o.rawBackends, struct {
			b        backend.Backend
			priority int
		}{b, priority})
	}
}

// withoutAdapters skips constructing the real provider adapters; tests
// register scripted backends instead.
func withoutAdapters() Option {
	return func(o *clientOptions) { o.noAdapters = true }
}

// New builds a client. Configuration is loaded from files and the
// environment unless WithSettings is given; adapters are constructed for
// every backend with credentials.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	var settings types.Settings
	if o.settings != nil {
		settings = *o.settings
	} else {
		var err error
		settings, err = config.Load(o.workdir)
		if err != nil {
			return nil, err
		}
	}
	for _, override := range o.overrides {
		override(&settings)
	}

	cat := catalog.Default()
	for alias, modelID := range settings.Aliases {
		if err := cat.SetAlias(alias, modelID); err != nil {
			return nil, err
		}
	}

	backends := backend.NewRegistry(settings.AvailabilityTTL)
	if !o.noAdapters {
		if err := registerAdapters(ctx, backends, settings); err != nil {
			return nil, err
		}
	}
	for _, rb := range o.rawBackends {
		backends.Register(rb.b, rb.priority)
	}

	tools := tool.NewRegistry()
	if !o.noBuiltins {
		if err := builtin.RegisterAll(tools); err != nil {
			return nil, err
		}
	}
	for _, def := range o.extraTools {
		if err := tools.Register(def); err != nil {
			return nil, err
		}
	}

	router := route.New(cat, backends)
	policy := retry.New(settings.Retry)
	orch := orchestrator.New(router, backends, tools, policy, settings)

	return &Client{
		settings: settings,
		catalog:  cat,
		backends: backends,
		tools:    tools,
		orch:     orch,
	}, nil
}

// registerAdapters constructs provider adapters for every backend the
// settings carry credentials for. A backend without credentials is
// simply absent, not an error.
func registerAdapters(ctx context.Context, reg *backend.Registry, settings types.Settings) error {
	log := logging.Component("client")

	if bs, ok := settings.Backends["anthropic"]; ok && bs.APIKey != "" {
		b, err := backend.NewAnthropic(ctx, backend.AnthropicConfig{
			APIKey:  bs.APIKey,
			BaseURL: bs.BaseURL,
			Model:   bs.Model,
		})
		if err != nil {
			return fmt.Errorf("configuring anthropic backend: %w", err)
		}
		reg.Register(b, 0)
		log.Debug().Msg("registered anthropic backend")
	}

	if bs, ok := settings.Backends["openai"]; ok && bs.APIKey != "" {
		b, err := backend.NewOpenAI(ctx, backend.OpenAIConfig{
			APIKey:  bs.APIKey,
			BaseURL: bs.BaseURL,
			Model:   bs.Model,
		})
		if err != nil {
			return fmt.Errorf("configuring openai backend: %w", err)
		}
		reg.Register(b, 1)
		log.Debug().Msg("registered openai backend")
	}

	if bs, ok := settings.Backends["local"]; ok && bs.BaseURL != "" {
		b, err := backend.NewOpenAI(ctx, backend.OpenAIConfig{
			Name:    "local",
			APIKey:  bs.APIKey,
			BaseURL: bs.BaseURL,
			Model:   bs.Model,
		})
		if err != nil {
			return fmt.Errorf("configuring local backend: %w", err)
		}
		reg.Register(b, 2)
		log.Debug().Str("baseURL", bs.BaseURL).Msg("registered local backend")
	}

	return nil
}

// Settings returns the client's resolved settings.
func (c *Client) Settings() types.Settings { return c.settings }

// Ask runs one stateless request and returns the final response.
func (c *Client) Ask(ctx context.Context, prompt string, opts ...RequestOption) (*types.AIResponse, error) {
	req := &types.Request{Prompt: prompt}
	for _, opt := range opts {
		opt(req)
	}
	return c.orch.Ask(ctx, req)
}

// AskRequest runs a fully-specified request.
func (c *Client) AskRequest(ctx context.Context, req *types.Request) (*types.AIResponse, error) {
	return c.orch.Ask(ctx, req)
}

// Stream runs one stateless request, yielding content incrementally.
func (c *Client) Stream(ctx context.Context, prompt string, opts ...RequestOption) *ResponseStream {
	req := &types.Request{Prompt: prompt}
	for _, opt := range opts {
		opt(req)
	}
	return &ResponseStream{inner: c.orch.Stream(ctx, req)}
}

// StreamRequest streams a fully-specified request.
func (c *Client) StreamRequest(ctx context.Context, req *types.Request) *ResponseStream {
	return &ResponseStream{inner: c.orch.Stream(ctx, req)}
}

// Chat opens a multi-turn session with the given model (empty for the
// default) and optional system prompt.
func (c *Client) Chat(model, system string) *ChatSession {
	return &ChatSession{inner: session.New(c.orch, c.catalog, model, system)}
}

// Models lists the catalog, sorted by provider then ID.
func (c *Client) Models() []types.ModelSpec { return c.catalog.List() }

// Aliases returns the alias table, including configured extras.
func (c *Client) Aliases() map[string]string { return c.catalog.Aliases() }

// Resolve resolves a model ID or @alias against the catalog.
func (c *Client) Resolve(ref string) (types.ModelSpec, error) {
	return c.catalog.Resolve(ref)
}

// Status reports availability per registered backend.
func (c *Client) Status(ctx context.Context) map[string]bool {
	return c.backends.Status(ctx)
}

// Tools lists registered tool names, sorted.
func (c *Client) Tools() []string { return c.tools.Names() }

// RequestOption adjusts one request.
type RequestOption func(*types.Request)

// WithModel selects a model ID or @alias for this request.
func WithModel(ref string) RequestOption {
	return func(r *types.Request) { r.Model = ref }
}

// WithPinnedBackend pins the request to one backend, disabling fallback.
func WithPinnedBackend(name string) RequestOption {
	return func(r *types.Request) { r.Backend = name }
}

// WithSystem sets the system prompt for this request.
func WithSystem(system string) RequestOption {
	return func(r *types.Request) { r.System = system }
}

// WithTools enables the named registered tools for this request.
func WithTools(names ...string) RequestOption {
	return func(r *types.Request) { r.Tools = names }
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int) RequestOption {
	return func(r *types.Request) { r.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) RequestOption {
	return func(r *types.Request) { r.Temperature = &t }
}

// WithTimeout overrides the overall request deadline.
func WithTimeout(d time.Duration) RequestOption {
	return func(r *types.Request) { r.Timeout = d }
}
