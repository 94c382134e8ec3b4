package tests

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/acta-labs/minutero/internal/service"
	"github.com/acta-labs/minutero/pkg/llms/fireworks"
	"github.com/acta-labs/minutero/pkg/model"
)

const sampleTranscript = `A: Good morning everyone, let's start the weekly sync.
B: The migration finished on Tuesday, two days ahead of schedule.
A: Great. Carla, can you prepare the rollout report by Friday?
C: Yes, I'll have it ready by Thursday evening.
A: Then we reconvene next Monday at ten to review it.`

type FireworksIntegrationSuite struct {
	ExternalDependenciesSuite
	chatModel string
}

func (s *FireworksIntegrationSuite) SetupSuite() {
	s.ExternalDependenciesSuite.SetupSuite()

	run, err := strconv.ParseBool(strings.TrimSpace(os.Getenv("RUN_FIREWORKS_TESTS")))
	if err != nil || !run {
		s.T().Skip("RUN_FIREWORKS_TESTS is not true; skipping Fireworks integration tests")
	}

	if strings.TrimSpace(os.Getenv("FIREWORKS_API_KEY")) == "" {
		s.T().Skip("FIREWORKS_API_KEY is not set; skipping Fireworks integration tests")
	}

	s.chatModel = strings.TrimSpace(os.Getenv("FIREWORKS_MODEL"))
}

func (s *FireworksIntegrationSuite) generationOpts() []model.GeneratorOption {
	opts := []model.GeneratorOption{
		model.WithTemperature(0),
		model.WithMaxTokens(32768),
	}
	if s.chatModel != "" {
		opts = append(opts, model.WithModel(s.chatModel))
	}
	return opts
}

func (s *FireworksIntegrationSuite) TestCritiqueGeneration() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	generator, err := fireworks.NewStringContentGenerator(
		`{"title":"Weekly sync","summary":"Things were discussed."}`,
		s.generationOpts()...,
	)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), generator)

	generator.AddPromptContext(
		ctx,
		model.ContextMessageTypeSystem,
		"You are critical of meeting minutes. Your sole purpose is to provide brief feedback on a meeting minutes document so the writer knows what to fix.\nRespond in English.",
	)

	output, metadata, err := generator.Generate(ctx)
	require.NoError(s.T(), err)
	assert.NotEmpty(s.T(), strings.TrimSpace(output))
	assert.Equal(s.T(), "fireworks", metadata[model.MetadataKeyProvider])
	assert.NotEmpty(s.T(), metadata[model.MetadataKeyLatencyMs])
}

func (s *FireworksIntegrationSuite) TestMinutesGeneration() {
	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
	defer cancel()

	svc := service.NewMinutesService(
		fireworks.NewStructureContentGenerator[model.Minutes],
		fireworks.NewStringContentGenerator,
		service.MinutesConfig{
			Language:         "English",
			GeneratorOptions: s.generationOpts(),
		},
	)

	minutes, err := svc.Generate(ctx, service.GenerateRequest{
		Transcript: sampleTranscript,
		WordCount:  100,
	})
	require.NoError(s.T(), err)
	assert.NotEmpty(s.T(), strings.TrimSpace(minutes.Title))
	assert.NotEmpty(s.T(), strings.TrimSpace(minutes.Summary))
	require.NotNil(s.T(), minutes.Tasks)
	require.NotNil(s.T(), minutes.Attendees)
}

func (s *FireworksIntegrationSuite) TestFullRefinementRound() {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Second)
	defer cancel()

	svc := service.NewMinutesService(
		fireworks.NewStructureContentGenerator[model.Minutes],
		fireworks.NewStringContentGenerator,
		service.MinutesConfig{
			Language:         "English",
			GeneratorOptions: s.generationOpts(),
		},
	)

	first, err := svc.Refine(ctx, service.GenerateRequest{
		Transcript: sampleTranscript,
		WordCount:  100,
	})
	require.NoError(s.T(), err)
	require.NotEmpty(s.T(), strings.TrimSpace(first.Reflection))

	second, err := svc.Refine(ctx, service.GenerateRequest{
		Transcript:      sampleTranscript,
		WordCount:       100,
		PriorMinutes:    &first.Minutes,
		PriorReflection: first.Reflection,
	})
	require.NoError(s.T(), err)
	assert.NotEmpty(s.T(), strings.TrimSpace(second.Minutes.Summary))
	assert.NotEmpty(s.T(), strings.TrimSpace(second.Reflection))
}

func TestFireworksIntegrationSuite(t *testing.T) {
	suite.Run(t, new(FireworksIntegrationSuite))
}
