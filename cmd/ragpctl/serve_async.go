package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func serveAsyncCmd() *cobra.Command {
	var shardCount int
	var duration time.Duration
	var statusInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve-async",
		Short: "Start the sharded async runtime and hold it open",
		Long: `serve-async starts the async activation-spreading runtime over
the current graph and blocks, printing status on --status-interval,
until --duration elapses or the process receives SIGINT/SIGTERM. On
exit it flushes, consolidates, and stops the runtime.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.StartAsyncRuntime(shardCount); err != nil {
				return fmt.Errorf("start async runtime: %w", err)
			}
			defer e.StopAsyncRuntime()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			var deadline <-chan time.Time
			if duration > 0 {
				timer := time.NewTimer(duration)
				defer timer.Stop()
				deadline = timer.C
			}

			ticker := time.NewTicker(statusInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					fmt.Println(e.Status())
				case <-deadline:
					fmt.Println("serve-async: duration elapsed, shutting down")
					_, _, err := e.Consolidate()
					return err
				case <-sigCh:
					fmt.Println("serve-async: signal received, shutting down")
					_, _, err := e.Consolidate()
					return err
				}
			}
		},
	}

	cmd.Flags().IntVar(&shardCount, "shards", 0, "shard count (0 = auto)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "run for this long before stopping (0 = until signaled)")
	cmd.Flags().DurationVar(&statusInterval, "status-interval", 5*time.Second, "how often to print status")
	return cmd
}
