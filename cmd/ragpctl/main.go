// ragpctl is a small operator CLI over an embedded engine directory: it
// can initialize a node pool, print status, drive activation spreading
// and synapse formation, run a consolidation pass, and host the async
// runtime for a fixed duration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ragpctl",
	Short: "Operate an embedded graph-memory engine directory",
	Long: `ragpctl opens an engine rooted at --dir and runs a single
operation against it: initializing the node pool, printing status,
spreading activation from a seed, forming synapses from the recent
temporal window, consolidating the delta log into the base, or hosting
the sharded async runtime for a fixed duration.`,
}

func init() {
	rootCmd.PersistentFlags().String("dir", ".", "engine storage directory")

	rootCmd.AddCommand(
		initCmd(),
		statusCmd(),
		spreadCmd(),
		consolidateCmd(),
		serveAsyncCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ragpctl: %v\n", err)
		os.Exit(1)
	}
}
