package backend

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"

	"github.com/unillm/unillm/pkg/types"
)

// AnthropicBackend serves Claude models through the eino claude adapter.
type AnthropicBackend struct {
	chatModel model.ToolCallingChatModel
	apiKey    string
}

// AnthropicConfig configures the Anthropic backend.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string // default model bound at construction
	MaxTokens int
}

// NewAnthropic creates an Anthropic backend. The API key must already be
// resolved; this package never reads the environment.
func NewAnthropic(ctx context.Context, cfg AnthropicConfig) (*AnthropicBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key not configured")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-20241022"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}

	ccfg := &claude.Config{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	}
	if cfg.BaseURL != "" {
		ccfg.BaseURL = &cfg.BaseURL
	}
	cm, err := claude.NewChatModel(ctx, ccfg)
	if err != nil {
		return nil, fmt.Errorf("anthropic: create chat model: %w", err)
	}
	return &AnthropicBackend{chatModel: cm, apiKey: cfg.APIKey}, nil
}

func (b *AnthropicBackend) Name() string { return "anthropic" }

// Available only checks that credentials exist; the registry's TTL cache
// keeps this from being called per request.
func (b *AnthropicBackend) Available(ctx context.Context) bool {
	return b.apiKey != ""
}

func (b *AnthropicBackend) Capabilities() []types.Capability {
	return []types.Capability{types.CapChat, types.CapStreaming, types.CapTools, types.CapVision}
}

func (b *AnthropicBackend) prepare(req *Request) (model.ToolCallingChatModel, []model.Option, error) {
	cm := b.chatModel
	if len(req.Tools) > 0 {
		var err error
		cm, err = cm.WithTools(toEinoTools(req.Tools))
		if err != nil {
			return nil, nil, fmt.Errorf("anthropic: bind tools: %w", err)
		}
	}

	var opts []model.Option
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature != nil {
		opts = append(opts, model.WithTemperature(float32(*req.Temperature)))
	}
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}
	return cm, opts, nil
}

// Complete performs a blocking completion.
func (b *AnthropicBackend) Complete(ctx context.Context, req *Request) (*types.AIResponse, error) {
	cm, opts, err := b.prepare(req)
	if err != nil {
		return nil, err
	}
	msg, err := cm.Generate(ctx, toEinoMessages(req.Messages), opts...)
	if err != nil {
		return nil, classifyErr(b.Name(), err)
	}
	return fromEinoMessage(msg, b.Name(), req.Model), nil
}

// Stream starts a streaming completion.
func (b *AnthropicBackend) Stream(ctx context.Context, req *Request) (ChunkStream, error) {
	cm, opts, err := b.prepare(req)
	if err != nil {
		return nil, err
	}
	reader, err := cm.Stream(ctx, toEinoMessages(req.Messages), opts...)
	if err != nil {
		return nil, classifyErr(b.Name(), err)
	}
	return newEinoChunkStream(reader, b.Name()), nil
}
