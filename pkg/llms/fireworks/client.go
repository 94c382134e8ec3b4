// Package fireworks implements the content generator contracts against the
// Fireworks chat completion API, which speaks the OpenAI wire protocol.
package fireworks

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/acta-labs/minutero/pkg/model"
	"github.com/acta-labs/minutero/pkg/utils"
)

const (
	providerName     = "fireworks"
	defaultModelName = "accounts/fireworks/models/mixtral-8x7b-instruct"
	defaultBaseURL   = "https://api.fireworks.ai/inference/v1"
	envAPIKey        = "FIREWORKS_API_KEY"
	envBaseURL       = "FIREWORKS_BASE_URL"
	envModel         = "FIREWORKS_MODEL"
)

type client struct {
	apiClient openai.Client
}

func newClient(cfg model.GeneratorConfig) (*client, error) {
	apiKey := strings.TrimSpace(cfg.AuthToken)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv(envAPIKey))
	}
	if apiKey == "" {
		return nil, utils.WrapIfNotNil(errors.New("auth token is required (set WithAuthToken or " + envAPIKey + ")"))
	}

	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		baseURL = strings.TrimSpace(os.Getenv(envBaseURL))
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	apiClient := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)
	return &client{apiClient: apiClient}, nil
}

func resolveModelName(cfg model.GeneratorConfig) string {
	if cfg.Model != nil {
		name := strings.TrimSpace(*cfg.Model)
		if name != "" {
			return name
		}
	}

	fromEnv := strings.TrimSpace(os.Getenv(envModel))
	if fromEnv != "" {
		return fromEnv
	}
	return defaultModelName
}

func initMetadata(modelName string) model.GenerationMetadata {
	if strings.TrimSpace(modelName) == "" {
		modelName = "unknown"
	}

	return model.GenerationMetadata{
		model.MetadataKeyProvider: providerName,
		model.MetadataKeyModel:    modelName,
	}
}

func setLatencyMetadata(meta model.GenerationMetadata, start time.Time) {
	if meta == nil {
		return
	}
	meta[model.MetadataKeyLatencyMs] = strconv.FormatInt(time.Since(start).Milliseconds(), 10)
}

func applyCompletionMetadata(meta model.GenerationMetadata, completion *openai.ChatCompletion) {
	if meta == nil || completion == nil {
		return
	}

	meta[model.MetadataKeyInputTokens] = strconv.FormatInt(completion.Usage.PromptTokens, 10)
	meta[model.MetadataKeyOutputTokens] = strconv.FormatInt(completion.Usage.CompletionTokens, 10)
	meta[model.MetadataKeyTotalTokens] = strconv.FormatInt(completion.Usage.TotalTokens, 10)
	if strings.TrimSpace(completion.ID) != "" {
		meta[model.MetadataKeyResponseID] = completion.ID
	}
	if len(completion.Choices) > 0 && strings.TrimSpace(string(completion.Choices[0].FinishReason)) != "" {
		meta[model.MetadataKeyFinishReason] = string(completion.Choices[0].FinishReason)
	}
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
