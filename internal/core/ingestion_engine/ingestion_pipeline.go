package ingestion_engine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/markdave123-py/pawls/internal/models"
)

var _ Ingestor = (*BatchIngestor)(nil)

// FileIngester is the single-file ingest the pipeline fans out to.
type FileIngester interface {
	Ingest(ctx context.Context, filename string, r io.Reader) (*models.UploadResult, error)
}

// BatchIngestor ingests PDFs from disk with a fixed pool of workers:
//
// target:  the document service doing the actual ingest.
// jobs:    bounded queue of file paths.
// results: outcomes, collected for Wait.
type BatchIngestor struct {
	target FileIngester
	logger *slog.Logger
	jobs   chan string

	wg      sync.WaitGroup
	mu      sync.Mutex
	results []Result
}

// NewBatchIngestor constructs the ingestor with a bounded job queue.
func NewBatchIngestor(target FileIngester, cfg *IngestConfig, logger *slog.Logger) *BatchIngestor {
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	return &BatchIngestor{target: target, logger: logger, jobs: make(chan string, size)}
}

// Start runs numWorkers goroutines reading from the jobs channel.
func (i *BatchIngestor) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	for w := 1; w <= numWorkers; w++ {
		i.wg.Add(1)
		go func(w int) {
			defer i.wg.Done()
			for path := range i.jobs {
				res := Result{Path: path}
				if err := ctx.Err(); err != nil {
					res.Err = err
				} else {
					i.logger.Info("ingesting file", "path", path, "worker", w)
					res.Sha, res.Err = i.processOne(ctx, path)
				}
				if res.Err != nil {
					i.logger.Error("ingest failed", "path", path, "error", res.Err)
				}

				i.mu.Lock()
				i.results = append(i.results, res)
				i.mu.Unlock()
			}
		}(w)
	}
}

// Enqueue schedules a file for ingestion.
// If the queue is full, this call will block until space frees up.
func (i *BatchIngestor) Enqueue(path string) {
	i.jobs <- path
}

// Wait closes the queue, lets the workers drain it and returns every result
// ordered by path. No Enqueue may follow.
func (i *BatchIngestor) Wait() []Result {
	close(i.jobs)
	i.wg.Wait()

	i.mu.Lock()
	defer i.mu.Unlock()
	sort.Slice(i.results, func(a, b int) bool { return i.results[a].Path < i.results[b].Path })
	return i.results
}

func (i *BatchIngestor) processOne(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	res, err := i.target.Ingest(ctx, filepath.Base(path), f)
	if err != nil {
		return "", err
	}
	return res.Sha, nil
}
