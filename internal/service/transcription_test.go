package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/acta-labs/minutero/pkg/poller"
	"github.com/acta-labs/minutero/pkg/speech/assemblyai"
)

type fakeSpeechClient struct {
	submitCalls  int
	lastRequest  assemblyai.TranscriptRequest
	submitResult *assemblyai.Transcript
	submitErr    error

	getCalls  int
	getResult *assemblyai.Transcript
	getErr    error

	watchResults []*assemblyai.Transcript
}

func (f *fakeSpeechClient) Submit(ctx context.Context, request assemblyai.TranscriptRequest) (*assemblyai.Transcript, error) {
	f.submitCalls++
	f.lastRequest = request
	return f.submitResult, f.submitErr
}

func (f *fakeSpeechClient) Get(ctx context.Context, id string) (*assemblyai.Transcript, error) {
	f.getCalls++
	return f.getResult, f.getErr
}

func (f *fakeSpeechClient) NewStatusWatcher(id string) *poller.Watcher[*assemblyai.Transcript] {
	results := f.watchResults
	return poller.NewWatcher(func(ctx context.Context) (poller.Outcome[*assemblyai.Transcript], error) {
		if len(results) == 0 {
			return poller.Outcome[*assemblyai.Transcript]{}, errors.New("no scripted result")
		}
		transcript := results[0]
		if len(results) > 1 {
			results = results[1:]
		}
		switch transcript.Status {
		case assemblyai.StatusCompleted:
			return poller.Outcome[*assemblyai.Transcript]{Done: true, Value: transcript}, nil
		case assemblyai.StatusError:
			return poller.Outcome[*assemblyai.Transcript]{Done: true, Err: errors.New(transcript.Error)}, nil
		default:
			return poller.Outcome[*assemblyai.Transcript]{}, nil
		}
	}, poller.WithInterval(time.Millisecond))
}

type TranscriptionServiceSuite struct {
	suite.Suite

	client *fakeSpeechClient
	svc    *TranscriptionService
}

func TestTranscriptionServiceSuite(t *testing.T) {
	suite.Run(t, new(TranscriptionServiceSuite))
}

func (s *TranscriptionServiceSuite) SetupTest() {
	s.client = &fakeSpeechClient{
		submitResult: &assemblyai.Transcript{ID: "job-1", Status: assemblyai.StatusQueued},
	}
	s.svc = NewTranscriptionService(s.client, TranscriptionConfig{})
}

func (s *TranscriptionServiceSuite) TestStartRejectsEmptyURLWithoutProviderCall() {
	_, err := s.svc.Start(context.Background(), "   ", StartOptions{})
	s.ErrorIs(err, ErrValidation)
	s.Contains(err.Error(), "no audio URL provided")
	s.Zero(s.client.submitCalls)
}

func (s *TranscriptionServiceSuite) TestStartSubmitsWithSpeakerLabelsAndDefaultLanguage() {
	id, err := s.svc.Start(context.Background(), "https://cdn.example.com/audio.mp3", StartOptions{})
	s.Require().NoError(err)
	s.Equal("job-1", id)

	s.True(s.client.lastRequest.SpeakerLabels)
	s.Equal("es", s.client.lastRequest.LanguageCode)
	s.Zero(s.client.lastRequest.SpeakersExpected)
}

func (s *TranscriptionServiceSuite) TestStartForwardsOptions() {
	_, err := s.svc.Start(context.Background(), "https://cdn.example.com/audio.mp3", StartOptions{
		SpeakersExpected: 3,
		LanguageCode:     "en",
	})
	s.Require().NoError(err)
	s.Equal(3, s.client.lastRequest.SpeakersExpected)
	s.Equal("en", s.client.lastRequest.LanguageCode)
}

func (s *TranscriptionServiceSuite) TestStartWrapsProviderFailure() {
	s.client.submitErr = errors.New("invalid audio url")

	_, err := s.svc.Start(context.Background(), "https://cdn.example.com/audio.mp3", StartOptions{})
	s.ErrorIs(err, ErrProvider)
	s.Contains(err.Error(), "invalid audio url")
}

func (s *TranscriptionServiceSuite) TestStatusRequiresID() {
	_, err := s.svc.Status(context.Background(), "")
	s.ErrorIs(err, ErrValidation)
	s.Zero(s.client.getCalls)
}

func (s *TranscriptionServiceSuite) TestStatusQueuedReportsAsProcessing() {
	s.client.getResult = &assemblyai.Transcript{ID: "job-1", Status: assemblyai.StatusQueued}

	status, err := s.svc.Status(context.Background(), "job-1")
	s.Require().NoError(err)
	s.Equal(assemblyai.StatusProcessing, status.Status)
	s.Equal(5, status.Progress)
}

func (s *TranscriptionServiceSuite) TestStatusUnknownProviderStateReportsAsProcessing() {
	s.client.getResult = &assemblyai.Transcript{ID: "job-1", Status: assemblyai.Status("submitted")}

	status, err := s.svc.Status(context.Background(), "job-1")
	s.Require().NoError(err)
	s.Equal(assemblyai.StatusProcessing, status.Status)
	s.Equal(25, status.Progress)
}

func (s *TranscriptionServiceSuite) TestStatusProcessing() {
	s.client.getResult = &assemblyai.Transcript{ID: "job-1", Status: assemblyai.StatusProcessing}

	status, err := s.svc.Status(context.Background(), "job-1")
	s.Require().NoError(err)
	s.Equal(assemblyai.StatusProcessing, status.Status)
	s.Equal(50, status.Progress)
	s.Nil(status.Utterances)
	s.Empty(status.Error)
}

func (s *TranscriptionServiceSuite) TestStatusCompletedCarriesUtterances() {
	s.client.getResult = &assemblyai.Transcript{
		ID:     "job-1",
		Status: assemblyai.StatusCompleted,
		Utterances: []assemblyai.Utterance{
			{Speaker: "A", Text: "Hello"},
		},
	}

	status, err := s.svc.Status(context.Background(), "job-1")
	s.Require().NoError(err)
	s.Len(status.Utterances, 1)
	s.Zero(status.Progress)
}

func (s *TranscriptionServiceSuite) TestStatusCompletedWithoutUtterancesIsEmptyNotNil() {
	s.client.getResult = &assemblyai.Transcript{ID: "job-1", Status: assemblyai.StatusCompleted}

	status, err := s.svc.Status(context.Background(), "job-1")
	s.Require().NoError(err)
	s.NotNil(status.Utterances)
	s.Empty(status.Utterances)
}

func (s *TranscriptionServiceSuite) TestStatusErrorSurfacesProviderMessageVerbatim() {
	s.client.getResult = &assemblyai.Transcript{
		ID:     "job-1",
		Status: assemblyai.StatusError,
		Error:  "download error: audio file unreachable",
	}

	status, err := s.svc.Status(context.Background(), "job-1")
	s.Require().NoError(err)
	s.Equal("download error: audio file unreachable", status.Error)
	s.Zero(status.Progress)
}

func (s *TranscriptionServiceSuite) TestAwaitJoinsSpeakerTurns() {
	s.client.watchResults = []*assemblyai.Transcript{
		{ID: "job-1", Status: assemblyai.StatusProcessing},
		{
			ID:     "job-1",
			Status: assemblyai.StatusCompleted,
			Utterances: []assemblyai.Utterance{
				{Speaker: "A", Text: "Hello"},
				{Speaker: "B", Text: "Hola"},
			},
		},
	}

	text, err := s.svc.Await(context.Background(), "job-1")
	s.Require().NoError(err)
	s.Equal("A: Hello\nB: Hola", text)
}

func (s *TranscriptionServiceSuite) TestAwaitSurfacesJobFailure() {
	s.client.watchResults = []*assemblyai.Transcript{
		{ID: "job-1", Status: assemblyai.StatusError, Error: "transcoding failed"},
	}

	_, err := s.svc.Await(context.Background(), "job-1")
	s.ErrorIs(err, ErrProvider)
	s.Contains(err.Error(), "transcoding failed")
}

func (s *TranscriptionServiceSuite) TestAwaitRequiresID() {
	_, err := s.svc.Await(context.Background(), " ")
	s.ErrorIs(err, ErrValidation)
}
