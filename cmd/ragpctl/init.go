package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [node-id ...]",
		Short: "Initialize (or re-initialize) the node pool",
		Long: `init replaces the entire graph at --dir with a fresh, edge-free
registry over the given node ids. Any existing base, chunk files, delta
log, and cache contents are discarded.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			e, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.InitNodePool(ids); err != nil {
				return fmt.Errorf("init node pool: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), e.Status())
			return nil
		},
	}
	return cmd
}
