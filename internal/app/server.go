package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/pawls/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/pawls/internal/api/middlewares"
	"github.com/markdave123-py/pawls/internal/config"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, logger *slog.Logger, docs *handlers.DocumentHandler, anns *handlers.AnnotationHandler, allocs *handlers.AllocationHandler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(appMiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	// Uploads are parsed before the response is written.
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Auth-Request-Email", "User-Email"},
		AllowCredentials: true,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(appMiddleware.Identity)

		api.Post("/upload_pdf", docs.UploadPDF)

		api.Route("/doc/{sha}", func(doc chi.Router) {
			doc.Get("/pdf", docs.GetPDF)
			doc.Get("/title", docs.GetTitle)
			doc.Get("/tokens", docs.GetTokens)
			doc.Get("/annotations", anns.GetAnnotations)
			doc.Post("/annotations", anns.SaveAnnotations)
			doc.Post("/comments", allocs.SetComments)
			doc.Post("/junk", allocs.SetJunk)
		})

		api.Route("/annotation", func(a chi.Router) {
			a.Get("/labels", anns.GetLabels)
			a.Get("/relations", anns.GetRelations)
			a.Get("/allocation/info", allocs.GetAllocation)
		})
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{httpServer: httpSrv, logger: logger}
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
