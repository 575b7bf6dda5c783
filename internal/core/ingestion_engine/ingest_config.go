package ingestion_engine

// IngestConfig tunes the batch pipeline.
//
// Workers:   number of files ingested in parallel.
// QueueSize: how many paths may wait before Enqueue blocks.
type IngestConfig struct {
	Workers   int
	QueueSize int
}

// Result is the outcome of ingesting one file.
type Result struct {
	Path string
	Sha  string
	Err  error
}
