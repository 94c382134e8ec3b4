package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/acta-labs/minutero/internal/service"
	"github.com/acta-labs/minutero/internal/storage"
	"github.com/acta-labs/minutero/pkg/logging"
	"github.com/acta-labs/minutero/pkg/model"
	"github.com/acta-labs/minutero/pkg/speech/assemblyai"
)

const maxUploadBytes = 512 << 20 // 512 MiB

// Audio content types accepted by the upload endpoint.
var allowedAudioTypes = map[string]struct{}{
	"audio/mpeg": {},
	"audio/mp3":  {},
	"audio/wav":  {},
	"audio/ogg":  {},
	"audio/mp4":  {},
}

// Store is the object-storage surface the upload handler needs.
// *storage.MinioUploader satisfies it.
type Store interface {
	Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (*storage.StoredObject, error)
}

// Transcriber is the transcription surface the job handlers need.
// *service.TranscriptionService satisfies it.
type Transcriber interface {
	Start(ctx context.Context, audioURL string, opts service.StartOptions) (string, error)
	Status(ctx context.Context, id string) (*service.TranscriptionStatus, error)
}

// MinutesGenerator is the writer/critic surface the minutes handlers need.
// *service.MinutesService satisfies it.
type MinutesGenerator interface {
	Generate(ctx context.Context, request service.GenerateRequest) (model.Minutes, error)
	Reflect(ctx context.Context, minutes model.Minutes, priorReflection string) (string, error)
}

type Handler struct {
	store       Store
	transcriber Transcriber
	minutes     MinutesGenerator
}

func New(store Store, transcriber Transcriber, minutes MinutesGenerator) *Handler {
	return &Handler{
		store:       store,
		transcriber: transcriber,
		minutes:     minutes,
	}
}

// Routes mounts every endpoint on the given router.
func (h *Handler) Routes(router chi.Router) {
	router.Get("/health", h.Health)
	router.Route("/api", func(r chi.Router) {
		r.Post("/audio/upload", h.UploadAudio)
		r.Post("/start-transcription", h.StartTranscription)
		r.Get("/check-transcription-status", h.CheckTranscriptionStatus)
		r.Post("/generate-minutes", h.GenerateMinutes)
		r.Post("/generate-reflection", h.GenerateReflection)
	})
}

type errorReply struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, service.ErrValidation) {
		status = http.StatusBadRequest
	}
	logging.NewLogger(r.Context()).Errorf("request failed path=%s status=%d error=%v", r.URL.Path, status, err)
	render.Status(r, status)
	render.JSON(w, r, errorReply{Error: err.Error()})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

type uploadReply struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// UploadAudio receives one multipart audio file under the "audio" field and
// stores it, returning the URL the transcription endpoint accepts.
func (h *Handler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, r, service.WrapValidation("invalid multipart form: %v", err))
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		respondError(w, r, service.WrapValidation("no audio file provided"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if _, ok := allowedAudioTypes[strings.ToLower(contentType)]; !ok {
		respondError(w, r, service.WrapValidation("unsupported content type %q", contentType))
		return
	}

	object, err := h.store.Upload(r.Context(), header.Filename, file, header.Size, contentType)
	if err != nil {
		respondError(w, r, service.WrapUpload("failed to store audio: %v", err))
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, uploadReply{
		URL:         object.URL,
		Key:         object.Key,
		ContentType: object.ContentType,
		Size:        object.Size,
	})
}

type startTranscriptionRequest struct {
	AudioURL         string `json:"audioUrl"`
	SpeakersExpected int    `json:"speakersExpected,omitempty"`
	LanguageCode     string `json:"languageCode,omitempty"`
}

type startTranscriptionReply struct {
	ID string `json:"id"`
}

// StartTranscription submits a job for an uploaded audio URL and replies with
// the job id the client polls.
func (h *Handler) StartTranscription(w http.ResponseWriter, r *http.Request) {
	var request startTranscriptionRequest
	if err := render.DecodeJSON(r.Body, &request); err != nil {
		respondError(w, r, service.WrapValidation("invalid request body: %v", err))
		return
	}

	id, err := h.transcriber.Start(r.Context(), request.AudioURL, service.StartOptions{
		SpeakersExpected: request.SpeakersExpected,
		LanguageCode:     request.LanguageCode,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, startTranscriptionReply{ID: id})
}

type transcriptionStatusReply struct {
	Status     assemblyai.Status      `json:"status"`
	Progress   int                    `json:"progress,omitempty"`
	Utterances []assemblyai.Utterance `json:"utterances,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// CheckTranscriptionStatus reads a job once. Completed jobs carry utterances,
// failed jobs carry the provider's error message, and processing jobs carry a
// progress estimate; those are the only three reply shapes.
func (h *Handler) CheckTranscriptionStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")

	status, err := h.transcriber.Status(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	render.JSON(w, r, transcriptionStatusReply{
		Status:     status.Status,
		Progress:   status.Progress,
		Utterances: status.Utterances,
		Error:      status.Error,
	})
}

type generateMinutesRequest struct {
	Transcript string         `json:"transcript"`
	WordCount  int            `json:"wordCount,omitempty"`
	Minutes    *model.Minutes `json:"minutes,omitempty"`
	Reflection string         `json:"reflection,omitempty"`
}

// GenerateMinutes runs one writer-chain call. When the request carries prior
// minutes and a critique, the call is a refinement round instead of a first
// draft.
func (h *Handler) GenerateMinutes(w http.ResponseWriter, r *http.Request) {
	var request generateMinutesRequest
	if err := render.DecodeJSON(r.Body, &request); err != nil {
		respondError(w, r, service.WrapValidation("invalid request body: %v", err))
		return
	}

	minutes, err := h.minutes.Generate(r.Context(), service.GenerateRequest{
		Transcript:      request.Transcript,
		WordCount:       request.WordCount,
		PriorMinutes:    request.Minutes,
		PriorReflection: request.Reflection,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	render.JSON(w, r, minutes)
}

type generateReflectionRequest struct {
	Minutes    *model.Minutes `json:"minutes"`
	Reflection string         `json:"reflection,omitempty"`
}

type generateReflectionReply struct {
	Reflection string `json:"reflection"`
}

// GenerateReflection runs one critic-chain call against a minutes snapshot.
func (h *Handler) GenerateReflection(w http.ResponseWriter, r *http.Request) {
	var request generateReflectionRequest
	if err := render.DecodeJSON(r.Body, &request); err != nil {
		respondError(w, r, service.WrapValidation("invalid request body: %v", err))
		return
	}
	if request.Minutes == nil {
		respondError(w, r, service.WrapValidation("minutes are required"))
		return
	}

	reflection, err := h.minutes.Reflect(r.Context(), *request.Minutes, request.Reflection)
	if err != nil {
		respondError(w, r, err)
		return
	}

	render.JSON(w, r, generateReflectionReply{Reflection: reflection})
}
