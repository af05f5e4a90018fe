package backend

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/unillm/unillm/pkg/types"
)

// OpenAIBackend serves OpenAI models through the eino openai adapter.
// With a custom BaseURL it also fronts OpenAI-compatible local inference
// servers, so it doubles as the "local" backend variant.
type OpenAIBackend struct {
	chatModel model.ToolCallingChatModel
	name      string
	apiKey    string
	baseURL   string
}

// OpenAIConfig configures an OpenAI or OpenAI-compatible backend.
type OpenAIConfig struct {
	// Name overrides the backend identifier; defaults to "openai". Local
	// servers register as "local".
	Name      string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewOpenAI creates an OpenAI-compatible backend. Local servers may omit
// the API key when a BaseURL is set.
func NewOpenAI(ctx context.Context, cfg OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai: api key not configured")
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	ocfg := &openai.ChatModelConfig{
		APIKey:              cfg.APIKey,
		Model:               cfg.Model,
		MaxCompletionTokens: &maxTokens,
	}
	if cfg.BaseURL != "" {
		ocfg.BaseURL = cfg.BaseURL
	}
	cm, err := openai.NewChatModel(ctx, ocfg)
	if err != nil {
		return nil, fmt.Errorf("%s: create chat model: %w", cfg.Name, err)
	}
	return &OpenAIBackend{
		chatModel: cm,
		name:      cfg.Name,
		apiKey:    cfg.APIKey,
		baseURL:   cfg.BaseURL,
	}, nil
}

func (b *OpenAIBackend) Name() string { return b.name }

func (b *OpenAIBackend) Available(ctx context.Context) bool {
	return b.apiKey != "" || b.baseURL != ""
}

func (b *OpenAIBackend) Capabilities() []types.Capability {
	return []types.Capability{types.CapChat, types.CapStreaming, types.CapTools, types.CapVision}
}

func (b *OpenAIBackend) prepare(req *Request) (model.ToolCallingChatModel, []model.Option, error) {
	cm := b.chatModel
	if len(req.Tools) > 0 {
		var err error
		cm, err = cm.WithTools(toEinoTools(req.Tools))
		if err != nil {
			return nil, nil, fmt.Errorf("%s: bind tools: %w", b.name, err)
		}
	}

	var opts []model.Option
	if req.MaxTokens > 0 {
		opts = append(opts, openai.WithMaxCompletionTokens(req.MaxTokens))
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
func (b *OpenAIBackend) Complete(ctx context.Context, req *Request) (*types.AIResponse, error) {
	cm, opts, err := b.prepare(req)
	if err != nil {
		return nil, err
	}
	msg, err := cm.Generate(ctx, toEinoMessages(req.Messages), opts...)
	if err != nil {
		return nil, classifyErr(b.name, err)
	}
	return fromEinoMessage(msg, b.name, req.Model), nil
}

// Stream starts a streaming completion.
func (b *OpenAIBackend) Stream(ctx context.Context, req *Request) (ChunkStream, error) {
	cm, opts, err := b.prepare(req)
	if err != nil {
		return nil, err
	}
	reader, err := cm.Stream(ctx, toEinoMessages(req.Messages), opts...)
	if err != nil {
		return nil, classifyErr(b.name, err)
	}
	return newEinoChunkStream(reader, b.name), nil
}
