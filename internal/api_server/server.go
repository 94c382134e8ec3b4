package apiserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/acta-labs/minutero/internal/config"
	"github.com/acta-labs/minutero/internal/handlers"
	"github.com/acta-labs/minutero/pkg/logging"
)

const gracefulShutdownTimeout = 5 * time.Second

type Server struct {
	cfg     *config.Config
	handler *handlers.Handler
}

// New returns a new instance of the minutero API server.
func New(cfg *config.Config, handler *handlers.Handler) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		logging.NewLogger(r.Context()).Infof(
			"%s %s status=%d duration_ms=%d",
			r.Method, r.URL.Path, wrapped.Status(), time.Since(start).Milliseconds(),
		)
	})
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	log := logging.NewLogger(ctx)
	log.Info("Initializing API server")

	router := chi.NewRouter()
	router.Use(
		chiMiddleware.RequestID,
		requestLogger,
		chiMiddleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         300,
		}),
	)
	s.handler.Routes(router)

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		log.Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		log.Info("api server terminated")
	}()

	log.Infof("Listening on %s...", s.cfg.Service.Address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
