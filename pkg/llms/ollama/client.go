// Package ollama implements the content generator contracts against a local
// Ollama server, used as an offline development stand-in for the hosted chat
// provider.
package ollama

import (
	"os"
	"strconv"
	"strings"
	"time"

	ollamasdk "github.com/rozoomcool/go-ollama-sdk"

	"github.com/acta-labs/minutero/pkg/model"
)

const (
	providerName     = "ollama"
	defaultModelName = "llama3.1"
	defaultBaseURL   = "http://localhost:11434"
	envBaseURL       = "OLLAMA_BASE_URL"
	envModel         = "OLLAMA_MODEL"
)

type client struct {
	apiClient *ollamasdk.OllamaClient
	baseURL   string
}

func newClient(cfg model.GeneratorConfig) *client {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		baseURL = strings.TrimSpace(os.Getenv(envBaseURL))
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &client{
		apiClient: ollamasdk.NewClient(baseURL),
		baseURL:   baseURL,
	}
}

func resolveModelName(cfg model.GeneratorConfig) string {
	if cfg.Model != nil {
		modelName := strings.TrimSpace(*cfg.Model)
		if modelName != "" {
			return modelName
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
