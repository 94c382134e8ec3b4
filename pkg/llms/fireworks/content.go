package fireworks

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"

	"github.com/acta-labs/minutero/pkg/logging"
	"github.com/acta-labs/minutero/pkg/model"
	"github.com/acta-labs/minutero/pkg/utils"
)

type structuredGenerator[T any] struct {
	client          *client
	prompt          string
	cfg             model.GeneratorConfig
	promptContextMu sync.RWMutex
	promptContexts  []*model.PromptContext
}

type textGenerator struct {
	client          *client
	prompt          string
	cfg             model.GeneratorConfig
	promptContextMu sync.RWMutex
	promptContexts  []*model.PromptContext
}

func NewStructureContentGenerator[T any](prompt string, opts ...model.GeneratorOption) (model.ContentGenerator[T], error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, utils.WrapIfNotNil(errors.New("prompt is required"))
	}

	cfg := model.ResolveGeneratorOpts(opts...)
	c, err := newClient(cfg)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return &structuredGenerator[T]{client: c, prompt: prompt, cfg: cfg}, nil
}

func NewStringContentGenerator(prompt string, opts ...model.GeneratorOption) (model.ContentGenerator[string], error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, utils.WrapIfNotNil(errors.New("prompt is required"))
	}

	cfg := model.ResolveGeneratorOpts(opts...)
	c, err := newClient(cfg)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return &textGenerator{client: c, prompt: prompt, cfg: cfg}, nil
}

func (g *structuredGenerator[T]) AddPromptContext(ctx context.Context, messageType model.ContextMessageType, content string) {
	g.promptContextMu.Lock()
	defer g.promptContextMu.Unlock()

	g.promptContexts = append(g.promptContexts, &model.PromptContext{
		MessageType: messageType,
		Content:     content,
	})
	logging.NewLogger(ctx).Debugf("fireworks.structuredGenerator.AddPromptContext total_contexts=%d", len(g.promptContexts))
}

func (g *textGenerator) AddPromptContext(ctx context.Context, messageType model.ContextMessageType, content string) {
	g.promptContextMu.Lock()
	defer g.promptContextMu.Unlock()

	g.promptContexts = append(g.promptContexts, &model.PromptContext{
		MessageType: messageType,
		Content:     content,
	})
	logging.NewLogger(ctx).Debugf("fireworks.textGenerator.AddPromptContext total_contexts=%d", len(g.promptContexts))
}

func (g *structuredGenerator[T]) Generate(ctx context.Context) (T, model.GenerationMetadata, error) {
	start := time.Now()
	modelName := resolveModelName(g.cfg)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)
	var zero T

	messages, contextCount := g.messagesWithContext()
	log.Infof(
		"prompt_len=%d context_count=%d model=%q temperature=%v max_tokens=%v",
		len(g.prompt),
		contextCount,
		modelName,
		g.cfg.Temperature,
		g.cfg.MaxTokens,
	)

	schema, err := generateSchema[T]()
	if err != nil {
		log.Errorf("error: %v", err)
		return zero, meta, utils.WrapIfNotNil(err)
	}

	params := buildParams(modelName, g.cfg, messages)
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
			JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:   "structured_output",
				Schema: schema,
				Strict: openai.Bool(true),
			},
		},
	}

	completion, err := g.client.apiClient.Chat.Completions.New(ctx, params)
	if err != nil {
		log.Errorf("error: %v", err)
		return zero, meta, utils.WrapIfNotNil(err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		err = errors.New("chat completion returned no choices")
		log.Errorf("error: %v", err)
		return zero, meta, utils.WrapIfNotNil(err)
	}
	applyCompletionMetadata(meta, completion)

	output := strings.TrimSpace(completion.Choices[0].Message.Content)
	if output == "" {
		err = errors.New("response output is empty")
		log.Errorf("error: %v", err)
		return zero, meta, utils.WrapIfNotNil(err)
	}

	var result T
	err = json.Unmarshal([]byte(extractJSONPayload(output)), &result)
	if err != nil {
		log.Errorf("error: %v", err)
		return zero, meta, utils.WrapIfNotNil(err)
	}

	return result, meta, nil
}

// Generate streams the completion and concatenates the text fragments in
// arrival order; the stream is single-producer and already ordered, so no
// reordering buffer is needed.
func (g *textGenerator) Generate(ctx context.Context) (string, model.GenerationMetadata, error) {
	start := time.Now()
	modelName := resolveModelName(g.cfg)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)

	messages, contextCount := g.messagesWithContext()
	log.Infof(
		"prompt_len=%d context_count=%d model=%q temperature=%v max_tokens=%v stream=true",
		len(g.prompt),
		contextCount,
		modelName,
		g.cfg.Temperature,
		g.cfg.MaxTokens,
	)

	params := buildParams(modelName, g.cfg, messages)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := g.client.apiClient.Chat.Completions.NewStreaming(ctx, params)
	defer func() {
		_ = stream.Close()
	}()

	var builder strings.Builder
	chunks := 0
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 {
			builder.WriteString(chunk.Choices[0].Delta.Content)
			chunks++
		}
		if chunk.Usage.TotalTokens > 0 {
			meta[model.MetadataKeyInputTokens] = strconv.FormatInt(chunk.Usage.PromptTokens, 10)
			meta[model.MetadataKeyOutputTokens] = strconv.FormatInt(chunk.Usage.CompletionTokens, 10)
			meta[model.MetadataKeyTotalTokens] = strconv.FormatInt(chunk.Usage.TotalTokens, 10)
		}
	}
	meta[model.MetadataKeyChunks] = strconv.Itoa(chunks)

	if err := stream.Err(); err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		err := errors.New("response output is empty")
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}
	return output, meta, nil
}

func (g *structuredGenerator[T]) messagesWithContext() ([]openai.ChatCompletionMessageParamUnion, int) {
	g.promptContextMu.RLock()
	contexts := append([]*model.PromptContext(nil), g.promptContexts...)
	g.promptContextMu.RUnlock()

	return buildMessagesWithContext(g.prompt, contexts)
}

func (g *textGenerator) messagesWithContext() ([]openai.ChatCompletionMessageParamUnion, int) {
	g.promptContextMu.RLock()
	contexts := append([]*model.PromptContext(nil), g.promptContexts...)
	g.promptContextMu.RUnlock()

	return buildMessagesWithContext(g.prompt, contexts)
}

func buildMessagesWithContext(prompt string, contexts []*model.PromptContext) ([]openai.ChatCompletionMessageParamUnion, int) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(contexts)+1)
	contextCount := 0

	for _, contextItem := range contexts {
		if contextItem == nil {
			continue
		}

		content := strings.TrimSpace(contextItem.Content)
		if content == "" {
			continue
		}

		contextCount++
		switch contextItem.MessageType {
		case model.ContextMessageTypeSystem:
			messages = append(messages, openai.SystemMessage(content))
		case model.ContextMessageTypeAssistant:
			messages = append(messages, openai.AssistantMessage(content))
		default:
			messages = append(messages, openai.UserMessage(content))
		}
	}

	messages = append(messages, openai.UserMessage(prompt))
	return messages, contextCount
}

func buildParams(modelName string, cfg model.GeneratorConfig, messages []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    shared.ChatModel(modelName),
	}
	if cfg.Temperature != nil {
		params.Temperature = openai.Float(*cfg.Temperature)
	}
	if cfg.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*cfg.MaxTokens))
	}
	return params
}

func generateSchema[T any]() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	var value T
	schema := reflector.Reflect(value)

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	var schemaMap map[string]any
	err = json.Unmarshal(schemaJSON, &schemaMap)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	return schemaMap, nil
}
