package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/pawls/internal/app"
	"github.com/markdave123-py/pawls/internal/config"
	"github.com/markdave123-py/pawls/internal/logging"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "pawls",
		Short:        "Manage the PDF annotation store",
		Long:         "Administrative commands for the PDF annotation backend, run against the same configuration as the API server.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Configuration file (defaults to $PAWLS_CONFIGURATION_FILE)")

	cmd.AddCommand(newIngestCmd(opts), newAssignCmd(opts), newStatusCmd(opts))
	return cmd
}

// load builds the application the same way the API server does, logging to
// the command's error stream.
func (o *rootOptions) load(cmd *cobra.Command) (*app.App, *config.Config, *slog.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadConfigFrom(o.configFile)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, nil, nil, err
	}
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Production, cfg.LogLevel)

	a, err := app.NewApp(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize: %w", err)
	}
	return a, cfg, logger, nil
}
