package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/markdave123-py/pawls/internal/api/handlers"
	"github.com/markdave123-py/pawls/internal/config"
	"github.com/markdave123-py/pawls/internal/core"
	"github.com/markdave123-py/pawls/internal/core/ingestion_engine"
	objectclient "github.com/markdave123-py/pawls/internal/core/object-client"
	"github.com/markdave123-py/pawls/internal/core/store"
	"github.com/markdave123-py/pawls/internal/services"
)

const remoteParserTimeout = 5 * time.Minute

type App struct {
	Documents   *services.DocumentService
	Annotations *services.AnnotationService
	Allocations *services.AllocationService
	Server      *Server
}

// NewApp wires the stores, the parser, the optional archive and the services.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.OutputDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("output directory: %w", err)
	}
	docs := store.NewDocumentStore(cfg.OutputDirectory)
	status := store.NewStatusStore(cfg.OutputDirectory)

	parser := newParser(cfg, logger)
	logger.Info("parser ready", "parser", parser.Name())

	var archive services.Archive
	if cfg.ArchiveBucket != "" {
		appCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		objClient, err := objectclient.NewS3Client(appCtx, cfg)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the object client, %w", err)
		}
		archive = objectclient.NewArchive(objClient, cfg.ArchiveBucket)
		logger.Info("archive ready", "bucket", cfg.ArchiveBucket)
	}

	access := services.NewAccessControl(cfg.UsersFile, logger)
	a := &App{
		Documents:   services.NewDocumentService(docs, parser, archive, logger),
		Annotations: services.NewAnnotationService(docs, access, logger),
		Allocations: services.NewAllocationService(docs, status, access, logger),
	}
	a.Server = NewServer(cfg, logger,
		handlers.NewDocumentHandler(a.Documents, cfg, logger),
		handlers.NewAnnotationHandler(a.Annotations, logger),
		handlers.NewAllocationHandler(a.Allocations, logger),
	)
	return a, nil
}

func newParser(cfg *config.Config, logger *slog.Logger) core.Parser {
	if cfg.ParserURL != "" {
		return ingestion_engine.NewRemoteParser(cfg.ParserURL, remoteParserTimeout)
	}
	useReadability := false
	return ingestion_engine.NewLocalParser(ingestion_engine.NewDocconvExtractor(useReadability), logger)
}
