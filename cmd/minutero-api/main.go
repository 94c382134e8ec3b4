package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	apiserver "github.com/acta-labs/minutero/internal/api_server"
	"github.com/acta-labs/minutero/internal/config"
	"github.com/acta-labs/minutero/internal/handlers"
	"github.com/acta-labs/minutero/internal/service"
	"github.com/acta-labs/minutero/internal/storage"
	"github.com/acta-labs/minutero/pkg/llms/fireworks"
	"github.com/acta-labs/minutero/pkg/llms/ollama"
	"github.com/acta-labs/minutero/pkg/logging"
	"github.com/acta-labs/minutero/pkg/model"
	"github.com/acta-labs/minutero/pkg/speech/assemblyai"
)

func main() {
	// A missing .env is fine; deployments set real environment variables.
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.InitDefault(cfg.Service.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	log := logging.NewLogger(ctx)

	speechClient, err := assemblyai.NewClient(assemblyai.Config{
		APIKey:         cfg.Speech.APIKey,
		BaseURL:        cfg.Speech.BaseUrl,
		PollInterval:   time.Duration(cfg.Speech.PollIntervalSeconds) * time.Second,
		PollMaxRetries: cfg.Speech.PollMaxRetries,
		PollMaxWait:    time.Duration(cfg.Speech.PollMaxWaitMinutes) * time.Minute,
	})
	if err != nil {
		log.Errorf("failed to create speech client: %v", err)
		os.Exit(1)
	}

	uploader, err := storage.NewMinioUploader(
		storage.WithEndpoint(cfg.Storage.Endpoint),
		storage.WithAccessKey(cfg.Storage.AccessKey),
		storage.WithSecretKey(cfg.Storage.SecretKey),
		storage.WithBucket(cfg.Storage.Bucket),
		storage.WithSSL(cfg.Storage.UseSSL),
		storage.WithPublicBaseURL(cfg.Storage.PublicBaseUrl),
	)
	if err != nil {
		log.Errorf("failed to create storage client: %v", err)
		os.Exit(1)
	}
	if err := uploader.EnsureBucket(ctx); err != nil {
		log.Errorf("failed to prepare storage bucket: %v", err)
		os.Exit(1)
	}

	newWriter, newCritic, err := chatFactories(cfg)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}

	minutesService := service.NewMinutesService(newWriter, newCritic, service.MinutesConfig{
		Language:         cfg.Service.ResponseLanguage,
		GeneratorOptions: generatorOptions(cfg),
	})
	transcriptionService := service.NewTranscriptionService(speechClient, service.TranscriptionConfig{
		DefaultLanguageCode: cfg.Speech.LanguageCode,
	})

	handler := handlers.New(uploader, transcriptionService, minutesService)
	if err := apiserver.New(cfg, handler).Run(ctx); err != nil {
		log.Errorf("api server failed: %v", err)
		os.Exit(1)
	}
}

func chatFactories(cfg *config.Config) (model.NewStructureContentGeneratorFunc[model.Minutes], model.NewStringContentGeneratorFunc, error) {
	switch cfg.Chat.Provider {
	case "fireworks":
		return fireworks.NewStructureContentGenerator[model.Minutes], fireworks.NewStringContentGenerator, nil
	case "ollama":
		return ollama.NewStructureContentGenerator[model.Minutes], ollama.NewStringContentGenerator, nil
	default:
		return nil, nil, fmt.Errorf("unknown chat provider %q", cfg.Chat.Provider)
	}
}

func generatorOptions(cfg *config.Config) []model.GeneratorOption {
	opts := []model.GeneratorOption{
		model.WithTemperature(cfg.Chat.Temperature),
		model.WithMaxTokens(cfg.Chat.MaxTokens),
	}
	if cfg.Chat.APIKey != "" {
		opts = append(opts, model.WithAuthToken(cfg.Chat.APIKey))
	}
	if cfg.Chat.BaseUrl != "" {
		opts = append(opts, model.WithURL(cfg.Chat.BaseUrl))
	}
	if cfg.Chat.Model != "" {
		opts = append(opts, model.WithModel(cfg.Chat.Model))
	}
	return opts
}
