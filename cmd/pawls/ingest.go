package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/pawls/internal/core/ingestion_engine"
	"github.com/markdave123-py/pawls/internal/services"
)

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var jobs int
	cmd := &cobra.Command{
		Use:   "ingest <file-or-dir>...",
		Short: "Ingest PDFs from disk",
		Long:  "Ingest every PDF given directly or found under the given directories, exactly as if each had been uploaded.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := collectPDFs(args)
			if err != nil {
				return err
			}
			a, cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if jobs <= 0 {
				jobs = cfg.ParserWorkers
			}

			ing := ingestion_engine.NewBatchIngestor(a.Documents, &ingestion_engine.IngestConfig{Workers: jobs}, logger)
			ing.Start(cmd.Context(), jobs)
			for _, p := range paths {
				ing.Enqueue(p)
			}

			failed := 0
			for _, res := range ing.Wait() {
				if res.Err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL\t%s\t%v\n", res.Path, res.Err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "OK\t%s\t%s\n", res.Path, res.Sha)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(paths))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "Files parsed in parallel (defaults to PARSER_WORKERS)")
	return cmd
}

// collectPDFs expands directories into the .pdf files below them. Two files
// with the same identifier would be ingested into one directory concurrently,
// so such a batch is refused.
func collectPDFs(args []string) ([]string, error) {
	var paths []string
	for i, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("on %dth argument: %w", i+1, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".pdf") {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		sha, err := services.IdentifierFromFilename(p)
		if err != nil {
			// reported per file by the ingest itself
			continue
		}
		if prev, ok := seen[sha]; ok {
			return nil, fmt.Errorf("%s and %s both map to identifier %q", prev, p, sha)
		}
		seen[sha] = p
	}
	return paths, nil
}
