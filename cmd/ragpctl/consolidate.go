package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func consolidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consolidate",
		Short: "Fold the delta log into the base and prune weak edges",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			merged, pruned, err := e.Consolidate()
			if err != nil {
				return fmt.Errorf("consolidate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "merged %d delta entries, pruned %d edges\n", merged, pruned)
			fmt.Fprintln(cmd.OutOrStdout(), e.Status())
			return nil
		},
	}
}
