package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragpdb/ragp"
)

func openEngine(cmd *cobra.Command) (*ragp.Engine, error) {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return nil, err
	}
	return ragp.New(dir)
}

func parseIDs(args []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(args))
	for _, a := range args {
		var id uint64
		if _, err := fmt.Sscanf(a, "%d", &id); err != nil {
			return nil, fmt.Errorf("invalid node id %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
