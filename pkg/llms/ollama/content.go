package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	ollamasdk "github.com/rozoomcool/go-ollama-sdk"

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
	return &structuredGenerator[T]{client: newClient(cfg), prompt: prompt, cfg: cfg}, nil
}

func NewStringContentGenerator(prompt string, opts ...model.GeneratorOption) (model.ContentGenerator[string], error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, utils.WrapIfNotNil(errors.New("prompt is required"))
	}

	cfg := model.ResolveGeneratorOpts(opts...)
	return &textGenerator{client: newClient(cfg), prompt: prompt, cfg: cfg}, nil
}

func (g *structuredGenerator[T]) AddPromptContext(ctx context.Context, messageType model.ContextMessageType, content string) {
	g.promptContextMu.Lock()
	defer g.promptContextMu.Unlock()

	g.promptContexts = append(g.promptContexts, &model.PromptContext{
		MessageType: messageType,
		Content:     content,
	})
	logging.NewLogger(ctx).Debugf("ollama.structuredGenerator.AddPromptContext total_contexts=%d", len(g.promptContexts))
}

func (g *textGenerator) AddPromptContext(ctx context.Context, messageType model.ContextMessageType, content string) {
	g.promptContextMu.Lock()
	defer g.promptContextMu.Unlock()

	g.promptContexts = append(g.promptContexts, &model.PromptContext{
		MessageType: messageType,
		Content:     content,
	})
	logging.NewLogger(ctx).Debugf("ollama.textGenerator.AddPromptContext total_contexts=%d", len(g.promptContexts))
}

func (g *structuredGenerator[T]) Generate(ctx context.Context) (T, model.GenerationMetadata, error) {
	start := time.Now()
	modelName := resolveModelName(g.cfg)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)
	var zero T

	schema, err := generateJSONSchema[T]()
	if err != nil {
		log.Errorf("error: %v", err)
		return zero, meta, utils.WrapIfNotNil(err)
	}
	schemaInstruction, err := buildStructuredOutputInstruction(schema)
	if err != nil {
		log.Errorf("error: %v", err)
		return zero, meta, utils.WrapIfNotNil(err)
	}

	messages, contextCount := g.messagesWithContext()
	messages = append(messages, ollamasdk.ChatMessage{
		Role:    "user",
		Content: schemaInstruction,
	})

	log.Infof(
		"prompt_len=%d context_count=%d model=%q base_url=%q",
		len(g.prompt),
		contextCount,
		modelName,
		g.client.baseURL,
	)

	finalText, err := g.client.apiClient.Chat(modelName, messages)
	if err != nil {
		log.Errorf("error: %v", err)
		return zero, meta, utils.WrapIfNotNil(err)
	}

	payload := extractJSONPayload(finalText)
	var out T
	err = json.Unmarshal([]byte(payload), &out)
	if err == nil {
		return out, meta, nil
	}

	// Local models sometimes wrap the object in prose; do one repair round to force valid JSON.
	log.Warnf("structured output parse failed, attempting repair: %v", err)
	repaired, repairErr := g.repairStructuredJSON(modelName, schema, finalText)
	if repairErr != nil {
		log.Errorf("error: %v", repairErr)
		return zero, meta, utils.WrapIfNotNil(err)
	}

	err = json.Unmarshal([]byte(extractJSONPayload(repaired)), &out)
	if err != nil {
		log.Errorf("error: %v", err)
		return zero, meta, utils.WrapIfNotNil(err)
	}
	return out, meta, nil
}

func (g *textGenerator) Generate(ctx context.Context) (string, model.GenerationMetadata, error) {
	start := time.Now()
	modelName := resolveModelName(g.cfg)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)
	messages, contextCount := g.messagesWithContext()

	log.Infof(
		"prompt_len=%d context_count=%d model=%q base_url=%q",
		len(g.prompt),
		contextCount,
		modelName,
		g.client.baseURL,
	)

	finalText, err := g.client.apiClient.Chat(modelName, messages)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}

	finalText = strings.TrimSpace(finalText)
	if finalText == "" {
		err = errors.New("response output is empty")
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}
	return finalText, meta, nil
}

func (g *structuredGenerator[T]) messagesWithContext() ([]ollamasdk.ChatMessage, int) {
	g.promptContextMu.RLock()
	contexts := append([]*model.PromptContext(nil), g.promptContexts...)
	g.promptContextMu.RUnlock()

	return buildMessagesWithContext(g.prompt, contexts)
}

func (g *textGenerator) messagesWithContext() ([]ollamasdk.ChatMessage, int) {
	g.promptContextMu.RLock()
	contexts := append([]*model.PromptContext(nil), g.promptContexts...)
	g.promptContextMu.RUnlock()

	return buildMessagesWithContext(g.prompt, contexts)
}

func buildMessagesWithContext(prompt string, contexts []*model.PromptContext) ([]ollamasdk.ChatMessage, int) {
	messages := make([]ollamasdk.ChatMessage, 0, len(contexts)+1)
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
		role := "user"
		switch contextItem.MessageType {
		case model.ContextMessageTypeSystem:
			role = "system"
		case model.ContextMessageTypeAssistant:
			role = "assistant"
		}

		messages = append(messages, ollamasdk.ChatMessage{
			Role:    role,
			Content: content,
		})
	}

	messages = append(messages, ollamasdk.ChatMessage{
		Role:    "user",
		Content: prompt,
	})
	return messages, contextCount
}

func (g *structuredGenerator[T]) repairStructuredJSON(
	modelName string,
	schema map[string]any,
	rawOutput string,
) (string, error) {
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return "", utils.WrapIfNotNil(err)
	}

	messages := []ollamasdk.ChatMessage{
		{
			Role:    "system",
			Content: "You are a strict JSON formatter.",
		},
		{
			Role: "user",
			Content: "Reformat the following output into valid JSON matching this schema. Return only JSON.\n\n" +
				"Schema:\n" + string(schemaBytes) + "\n\n" +
				"Output:\n" + rawOutput,
		},
	}

	text, err := g.client.apiClient.Chat(modelName, messages)
	if err != nil {
		return "", utils.WrapIfNotNil(err)
	}
	return strings.TrimSpace(text), nil
}

func generateJSONSchema[T any]() (map[string]any, error) {
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

func buildStructuredOutputInstruction(schema map[string]any) (string, error) {
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return "", utils.WrapIfNotNil(err)
	}

	return "Return ONLY valid JSON matching this schema. Do not include markdown fences.\n" + string(schemaBytes), nil
}

func extractJSONPayload(text string) string {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return strings.TrimSpace(trimmed[start : end+1])
	}
	return trimmed
}
