package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newAssignCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <user> [sha]...",
		Short: "Allocate papers to an annotator",
		Long:  "Add papers to the annotator's status record, creating it if needed. Without shas every stored paper is assigned.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			added, err := a.Allocations.Assign(args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "assigned %d new papers to %s\n", added, args[0])
			return nil
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <user>",
		Short: "Print an annotator's allocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			alloc, err := a.Allocations.AllocationFor(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(alloc)
		},
	}
}
