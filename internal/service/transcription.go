package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/acta-labs/minutero/pkg/logging"
	"github.com/acta-labs/minutero/pkg/poller"
	"github.com/acta-labs/minutero/pkg/speech/assemblyai"
)

// SpeechClient is the provider surface the transcription service needs.
// *assemblyai.Client satisfies it.
type SpeechClient interface {
	Submit(ctx context.Context, request assemblyai.TranscriptRequest) (*assemblyai.Transcript, error)
	Get(ctx context.Context, id string) (*assemblyai.Transcript, error)
	NewStatusWatcher(id string) *poller.Watcher[*assemblyai.Transcript]
}

// StartOptions tune one job submission. SpeakersExpected is advisory; zero
// means the provider auto-detects.
type StartOptions struct {
	SpeakersExpected int
	LanguageCode     string
}

// TranscriptionStatus is the collapsed job view served to polling clients:
// processing (with a progress estimate), completed (with utterances) or
// error (with the provider's message). Provider-native non-terminal states
// such as queued never leak through.
type TranscriptionStatus struct {
	Status     assemblyai.Status
	Progress   int
	Utterances []assemblyai.Utterance
	Error      string
}

type TranscriptionConfig struct {
	// DefaultLanguageCode is used when a start request does not name one.
	DefaultLanguageCode string
}

type TranscriptionService struct {
	client       SpeechClient
	languageCode string
}

func NewTranscriptionService(client SpeechClient, cfg TranscriptionConfig) *TranscriptionService {
	languageCode := strings.TrimSpace(cfg.DefaultLanguageCode)
	if languageCode == "" {
		languageCode = "es"
	}

	return &TranscriptionService{
		client:       client,
		languageCode: languageCode,
	}
}

// Start submits a transcription job for the given audio URL and returns the
// provider's opaque job id.
func (s *TranscriptionService) Start(ctx context.Context, audioURL string, opts StartOptions) (string, error) {
	if strings.TrimSpace(audioURL) == "" {
		return "", fmt.Errorf("%w: no audio URL provided", ErrValidation)
	}

	languageCode := strings.TrimSpace(opts.LanguageCode)
	if languageCode == "" {
		languageCode = s.languageCode
	}

	transcript, err := s.client.Submit(ctx, assemblyai.TranscriptRequest{
		AudioURL:         audioURL,
		SpeakerLabels:    true,
		LanguageCode:     languageCode,
		SpeakersExpected: opts.SpeakersExpected,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}

	logging.NewLogger(ctx).Infof("transcription_started id=%s language_code=%s", transcript.ID, languageCode)
	return transcript.ID, nil
}

// Status reads the job once and collapses the provider state into the
// three-state model. Non-terminal states report as processing with a
// heuristic progress figure derived from the provider's native state, so a
// freshly queued job shows as processing at 5.
func (s *TranscriptionService) Status(ctx context.Context, id string) (*TranscriptionStatus, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: transcription id is required", ErrValidation)
	}

	transcript, err := s.client.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	status := &TranscriptionStatus{}
	switch transcript.Status {
	case assemblyai.StatusCompleted:
		status.Status = assemblyai.StatusCompleted
		status.Utterances = transcript.Utterances
		if status.Utterances == nil {
			status.Utterances = []assemblyai.Utterance{}
		}
	case assemblyai.StatusError:
		status.Status = assemblyai.StatusError
		status.Error = transcript.Error
	default:
		status.Status = assemblyai.StatusProcessing
		status.Progress = assemblyai.ProgressEstimate(transcript.Status)
	}

	return status, nil
}

// Await polls the job to a terminal state and returns the speaker-joined
// transcript text. Cancellation of ctx stops the polling loop.
func (s *TranscriptionService) Await(ctx context.Context, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: transcription id is required", ErrValidation)
	}

	watcher := s.client.NewStatusWatcher(id)
	watcher.Start(ctx)
	defer watcher.Cancel()

	transcript, err := watcher.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}

	return assemblyai.JoinUtterances(transcript.Utterances), nil
}
