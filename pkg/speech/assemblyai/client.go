// Package assemblyai is a thin client for the provider's asynchronous
// transcription API: submit a job for a publicly reachable audio URL, then
// read job status until the provider reports a terminal state.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/acta-labs/minutero/pkg/logging"
	"github.com/acta-labs/minutero/pkg/poller"
	"github.com/acta-labs/minutero/pkg/utils"
)

const (
	providerName       = "assemblyai"
	defaultBaseURL     = "https://api.assemblyai.com"
	defaultSpeechModel = "best"
	defaultHTTPTimeout = 30 * time.Second
	envAPIKey          = "ASSEMBLYAI_API_KEY"
	envBaseURL         = "ASSEMBLYAI_BASE_URL"
)

// Status is the collapsed three-state-plus-queued job status model. The
// provider's native states map onto exactly this set.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// ProgressEstimate maps a job status to a coarse 0-100 figure. The provider
// exposes no real progress signal, so this is a UX decoration only.
func ProgressEstimate(status Status) int {
	switch status {
	case StatusQueued:
		return 5
	case StatusProcessing:
		return 50
	case StatusCompleted:
		return 100
	default:
		return 25
	}
}

// Utterance is one speaker-attributed segment of transcribed speech.
type Utterance struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// JoinUtterances renders utterances as "SPEAKER: text" lines, the transcript
// form consumed by the minutes writer.
func JoinUtterances(utterances []Utterance) string {
	lines := make([]string, 0, len(utterances))
	for _, utterance := range utterances {
		text := strings.TrimSpace(utterance.Text)
		if text == "" {
			continue
		}
		lines = append(lines, utterance.Speaker+": "+text)
	}
	return strings.Join(lines, "\n")
}

// TranscriptRequest are the job submission parameters. SpeakersExpected is
// advisory to the provider's diarization model; zero means auto-detect and is
// omitted from the request.
type TranscriptRequest struct {
	AudioURL         string `json:"audio_url"`
	SpeechModel      string `json:"speech_model,omitempty"`
	SpeakerLabels    bool   `json:"speaker_labels"`
	LanguageCode     string `json:"language_code,omitempty"`
	SpeakersExpected int    `json:"speakers_expected,omitempty"`
}

// Transcript is the provider's view of one job. Utterances are populated only
// once Status is completed; Error only once it is error.
type Transcript struct {
	ID         string      `json:"id"`
	Status     Status      `json:"status"`
	Text       string      `json:"text"`
	Error      string      `json:"error"`
	Utterances []Utterance `json:"utterances"`
}

type apiErrorResponse struct {
	Error string `json:"error"`
}

type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	// PollInterval and PollMaxRetries tune Transcribe's status polling.
	PollInterval   time.Duration
	PollMaxRetries int
	PollMaxWait    time.Duration
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cfg        Config
}

func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv(envAPIKey))
	}
	if apiKey == "" {
		return nil, utils.WrapIfNotNil(fmt.Errorf("api key is required (set Config.APIKey or %s)", envAPIKey))
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = strings.TrimSpace(os.Getenv(envBaseURL))
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		cfg:        cfg,
	}, nil
}

// Submit starts a transcription job and returns the provider's view of it,
// including the opaque job id.
func (c *Client) Submit(ctx context.Context, request TranscriptRequest) (*Transcript, error) {
	if strings.TrimSpace(request.AudioURL) == "" {
		return nil, utils.WrapIfNotNil(errors.New("audio url is required"))
	}
	if strings.TrimSpace(request.SpeechModel) == "" {
		request.SpeechModel = defaultSpeechModel
	}

	logging.NewLogger(ctx).Infof(
		"transcription_submit audio_url=%q language_code=%q speakers_expected=%d",
		request.AudioURL,
		request.LanguageCode,
		request.SpeakersExpected,
	)

	transcript, err := c.do(ctx, http.MethodPost, "/v2/transcript", request)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	if strings.TrimSpace(transcript.ID) == "" {
		return nil, utils.WrapIfNotNil(errors.New("provider returned no transcript id"))
	}
	return transcript, nil
}

// Get reads the current job state for the given id.
func (c *Client) Get(ctx context.Context, id string) (*Transcript, error) {
	if strings.TrimSpace(id) == "" {
		return nil, utils.WrapIfNotNil(errors.New("transcript id is required"))
	}

	transcript, err := c.do(ctx, http.MethodGet, "/v2/transcript/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return transcript, nil
}

// Transcribe submits a job and polls it to a terminal state. A provider-side
// error state surfaces as an error carrying the provider's message verbatim.
func (c *Client) Transcribe(ctx context.Context, request TranscriptRequest) (*Transcript, error) {
	submitted, err := c.Submit(ctx, request)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	watcher := c.NewStatusWatcher(submitted.ID)
	watcher.Start(ctx)
	transcript, err := watcher.Wait(ctx)
	if err != nil {
		watcher.Cancel()
		return nil, utils.WrapIfNotNil(err)
	}
	return transcript, nil
}

// NewStatusWatcher builds a poller over Get for the given job id. The caller
// owns the watcher's lifecycle; canceling it stops the status queries.
func (c *Client) NewStatusWatcher(id string) *poller.Watcher[*Transcript] {
	opts := make([]poller.Option, 0, 3)
	if c.cfg.PollInterval > 0 {
		opts = append(opts, poller.WithInterval(c.cfg.PollInterval))
	}
	if c.cfg.PollMaxRetries > 0 {
		opts = append(opts, poller.WithMaxRetries(c.cfg.PollMaxRetries))
	}
	if c.cfg.PollMaxWait > 0 {
		opts = append(opts, poller.WithMaxWait(c.cfg.PollMaxWait))
	}

	return poller.NewWatcher(func(ctx context.Context) (poller.Outcome[*Transcript], error) {
		transcript, err := c.Get(ctx, id)
		if err != nil {
			return poller.Outcome[*Transcript]{}, err
		}
		switch transcript.Status {
		case StatusCompleted:
			return poller.Outcome[*Transcript]{Done: true, Value: transcript}, nil
		case StatusError:
			message := strings.TrimSpace(transcript.Error)
			if message == "" {
				message = "transcription failed"
			}
			return poller.Outcome[*Transcript]{Done: true, Err: fmt.Errorf("%s: %s", providerName, message)}, nil
		default:
			return poller.Outcome[*Transcript]{}, nil
		}
	}, opts...)
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*Transcript, error) {
	var body io.Reader
	if payload != nil {
		requestBits, err := json.Marshal(payload)
		if err != nil {
			return nil, utils.WrapIfNotNil(err)
		}
		body = bytes.NewReader(requestBits)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	httpRequest.Header.Set("Authorization", c.apiKey)
	if payload != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	defer httpResponse.Body.Close()

	responseBits, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		apiErr := apiErrorResponse{}
		message := strings.TrimSpace(string(responseBits))
		if unmarshalErr := json.Unmarshal(responseBits, &apiErr); unmarshalErr == nil {
			candidate := strings.TrimSpace(apiErr.Error)
			if candidate != "" {
				message = candidate
			}
		}
		if message == "" {
			message = "unknown assemblyai error"
		}
		return nil, utils.WrapIfNotNil(fmt.Errorf("assemblyai API error (%d): %s", httpResponse.StatusCode, message))
	}

	transcript := Transcript{}
	err = json.Unmarshal(responseBits, &transcript)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return &transcript, nil
}
