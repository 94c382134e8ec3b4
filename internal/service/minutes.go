package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/acta-labs/minutero/pkg/logging"
	"github.com/acta-labs/minutero/pkg/model"
)

const (
	defaultLanguage  = "Spanish"
	defaultWordCount = 100
)

const writerFormatInstructions = `Respond only with a valid JSON object, containing nine fields:
'title', 'date', 'attendees', 'summary', 'takeaways', 'conclusions', 'next_meeting', 'tasks' and 'message'.

  "title": Title of the meeting,
  "date": Date of the meeting,
  "attendees": List of dictionaries of the meeting attendees. The dictionaries must have the following key values: "name", "position" and "role". The "role" key refers to the attendee's function in the meeting. If any of the values of these keys is not clear or is not mentioned, it is given the value "none".
  "summary": Succinctly summarize the minutes of the meeting in 3 clear and coherent paragraphs. Separate paragraphs using newline characters.
  "takeaways": List of the takeaways of the meeting minute,
  "conclusions": List of conclusions and actions to be taken,
  "next_meeting": List of the commitments made at the meeting. Be sure to go through the entire content of the meeting before giving your answer,
  "tasks": List of dictionaries for the commitments acquired in the meeting. The dictionaries must have the following key values "responsible", "date" and "description". In the key value "description", it is advisable to mention specifically what the person in charge is expected to do instead of indicating general actions. Be sure to include all the items in the next_meeting list,
  "message": Message to the critique.`

func writerSystemPrompt(language string) string {
	return "As an expert in minute meeting creation, you are a chatbot designed to facilitate the process of generating meeting minutes efficiently.\n\n" +
		writerFormatInstructions + "\n\n" +
		"Respond in " + language + ".\n\n" +
		"Ensure that your responses are structured, concise, and provide a comprehensive overview of the meeting proceedings for effective record-keeping and follow-up actions and only with json object."
}

func criticSystemPrompt(language string) string {
	return "You are critical of meeting minutes. Your sole purpose is to provide brief feedback on a meeting minutes document so the writer knows what to fix.\n" +
		"Respond in " + language + "."
}

// GenerateRequest carries one writer-chain invocation. PriorMinutes and
// PriorReflection are set only on refinement rounds.
type GenerateRequest struct {
	Transcript      string
	WordCount       int
	PriorMinutes    *model.Minutes
	PriorReflection string
}

// RefineResult is one refinement round's output: a fresh minutes snapshot and
// the critique prepared for the next round.
type RefineResult struct {
	Minutes    model.Minutes
	Reflection string
}

type MinutesConfig struct {
	// Language the chat provider is instructed to respond in. Defaults to Spanish.
	Language string
	// GeneratorOptions are passed to every writer and critic construction
	// (auth token, base URL, model, temperature, max tokens).
	GeneratorOptions []model.GeneratorOption
	// Now is overridable for deterministic prompt dates in tests.
	Now func() time.Time
}

// MinutesService runs the writer and critic chains against whichever chat
// provider the factory functions are bound to.
type MinutesService struct {
	newWriter model.NewStructureContentGeneratorFunc[model.Minutes]
	newCritic model.NewStringContentGeneratorFunc
	language  string
	opts      []model.GeneratorOption
	now       func() time.Time
}

func NewMinutesService(
	newWriter model.NewStructureContentGeneratorFunc[model.Minutes],
	newCritic model.NewStringContentGeneratorFunc,
	cfg MinutesConfig,
) *MinutesService {
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = defaultLanguage
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &MinutesService{
		newWriter: newWriter,
		newCritic: newCritic,
		language:  language,
		opts:      cfg.GeneratorOptions,
		now:       now,
	}
}

// Generate produces a new minutes snapshot from the transcript. When prior
// minutes and a critique are present they are fed back into the prompt so the
// writer improves on the previous round instead of starting over.
func (s *MinutesService) Generate(ctx context.Context, request GenerateRequest) (model.Minutes, error) {
	if strings.TrimSpace(request.Transcript) == "" {
		return model.Minutes{}, fmt.Errorf("%w: transcript is required", ErrValidation)
	}
	wordCount := request.WordCount
	if wordCount <= 0 {
		wordCount = defaultWordCount
	}

	generator, err := s.newWriter(s.writerUserPrompt(request.Transcript, wordCount), s.opts...)
	if err != nil {
		return model.Minutes{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	generator.AddPromptContext(ctx, model.ContextMessageTypeSystem, writerSystemPrompt(s.language))
	if request.PriorMinutes != nil {
		serialized, marshalErr := json.Marshal(request.PriorMinutes)
		if marshalErr != nil {
			return model.Minutes{}, fmt.Errorf("%w: %v", ErrGeneration, marshalErr)
		}
		generator.AddPromptContext(ctx, model.ContextMessageTypeAssistant, string(serialized))
	}
	if reflection := strings.TrimSpace(request.PriorReflection); reflection != "" {
		generator.AddPromptContext(
			ctx,
			model.ContextMessageTypeHuman,
			"This is a critique of the previous minutes. Use this information to improve and refine them:\n"+reflection,
		)
	}

	minutes, meta, err := generator.Generate(ctx)
	if err != nil {
		return model.Minutes{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	logging.NewLogger(ctx).Infof(
		"minutes_generated provider=%s model=%s latency_ms=%s refinement=%t",
		meta[model.MetadataKeyProvider],
		meta[model.MetadataKeyModel],
		meta[model.MetadataKeyLatencyMs],
		request.PriorMinutes != nil,
	)

	return minutes.Normalize(), nil
}

// Reflect produces critique text for a minutes snapshot. A prior critique, if
// present, is included so the critic refreshes its feedback instead of
// repeating it.
func (s *MinutesService) Reflect(ctx context.Context, minutes model.Minutes, priorReflection string) (string, error) {
	serialized, err := json.Marshal(minutes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCritique, err)
	}

	generator, err := s.newCritic(string(serialized), s.opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCritique, err)
	}

	generator.AddPromptContext(ctx, model.ContextMessageTypeSystem, criticSystemPrompt(s.language))
	if prior := strings.TrimSpace(priorReflection); prior != "" {
		generator.AddPromptContext(ctx, model.ContextMessageTypeAssistant, prior)
	}

	reflection, meta, err := generator.Generate(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCritique, err)
	}

	logging.NewLogger(ctx).Infof(
		"critique_generated provider=%s model=%s latency_ms=%s chunks=%s",
		meta[model.MetadataKeyProvider],
		meta[model.MetadataKeyModel],
		meta[model.MetadataKeyLatencyMs],
		meta[model.MetadataKeyChunks],
	)

	return reflection, nil
}

// Refine runs exactly one refinement round: one writer call embedding the
// prior minutes and the (possibly user-edited) critique, then one critic call
// on the fresh minutes. Rounds are strictly sequential; the caller decides
// whether another round happens.
func (s *MinutesService) Refine(ctx context.Context, request GenerateRequest) (RefineResult, error) {
	minutes, err := s.Generate(ctx, request)
	if err != nil {
		return RefineResult{}, err
	}

	reflection, err := s.Reflect(ctx, minutes, "")
	if err != nil {
		return RefineResult{}, err
	}

	return RefineResult{Minutes: minutes, Reflection: reflection}, nil
}

func (s *MinutesService) writerUserPrompt(transcript string, wordCount int) string {
	today := s.now().Format("02/01/2006")
	return fmt.Sprintf(
		"Today's date is %s.\nThis is a transcript of a meeting.\n-----\n%s\n-----\n"+
			"Your task is to write up for me the minutes of the meeting described above, "+
			"including all the points of the meeting. The meeting minutes should be approximately %d words "+
			"and should be divided into paragraphs using newline characters.",
		today,
		transcript,
		wordCount,
	)
}
