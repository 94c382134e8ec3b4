package model

import "context"

// These are factory methods each chat provider should implement to create content generators.

// NewStructureContentGeneratorFunc is for generators that produce structured output (i.e. JSON that can be unmarshaled into a struct).
type NewStructureContentGeneratorFunc[T any] func(prompt string, opts ...GeneratorOption) (ContentGenerator[T], error)

// NewStringContentGeneratorFunc is for generators that produce simple string output.
type NewStringContentGeneratorFunc func(prompt string, opts ...GeneratorOption) (ContentGenerator[string], error)

type ContentGenerator[T any] interface {
	Generate(ctx context.Context) (T, GenerationMetadata, error)
	AddPromptContext(ctx context.Context, messageType ContextMessageType, content string)
}

type GenerationMetadata map[string]string

const (
	MetadataKeyProvider     = "provider"
	MetadataKeyModel        = "model"
	MetadataKeyLatencyMs    = "latency_ms"
	MetadataKeyInputTokens  = "input_tokens"
	MetadataKeyOutputTokens = "output_tokens"
	MetadataKeyTotalTokens  = "total_tokens"
	MetadataKeyChunks       = "chunks"
	MetadataKeyResponseID   = "response_id"
	MetadataKeyFinishReason = "finish_reason"
)

type PromptContext struct {
	MessageType ContextMessageType
	Content     string
}

type ContextMessageType string

const (
	ContextMessageTypeSystem    ContextMessageType = "system"    // Instructions or persona, not part of the user input.
	ContextMessageTypeHuman     ContextMessageType = "human"     // Context as from a human, e.g. a prior critique fed back in.
	ContextMessageTypeAssistant ContextMessageType = "assistant" // Chained responses from the assistant, e.g. prior minutes.
)

type GeneratorOption interface {
	apply(*GeneratorConfig)
}

type generatorOptionFunc func(*GeneratorConfig)

func (f generatorOptionFunc) apply(cfg *GeneratorConfig) {
	f(cfg)
}

type GeneratorConfig struct {
	URL         string
	AuthToken   string
	Temperature *float64
	MaxTokens   *int
	Model       *string
}

func ResolveGeneratorOpts(opts ...GeneratorOption) GeneratorConfig {
	cfg := GeneratorConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&cfg)
		}
	}
	return cfg
}

func WithURL(value string) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.URL = value
	})
}

func WithAuthToken(value string) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.AuthToken = value
	})
}

func WithTemperature(value float64) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.Temperature = &value
	})
}

func WithMaxTokens(value int) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.MaxTokens = &value
	})
}

func WithModel(value string) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.Model = &value
	})
}
