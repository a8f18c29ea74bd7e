package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func spreadCmd() *cobra.Command {
	var seed uint64
	var strength float32
	var formSynapses bool

	cmd := &cobra.Command{
		Use:   "spread",
		Short: "Spread activation from a seed node and print the active set",
		Long: `spread runs a single synchronous SpreadActivation pass from
--seed with the given --strength, then prints every node left with
nonzero activation. Pass --form-synapses to additionally run
FormSynapsesFromWindow over the resulting temporal window afterward.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.SpreadActivation(seed, strength); err != nil {
				return fmt.Errorf("spread activation: %w", err)
			}

			active := e.GetActivation()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "active nodes: %d\n", len(active))
			for id, v := range active {
				fmt.Fprintf(out, "  %d: %.4f\n", id, v)
			}

			if formSynapses {
				formed, err := e.FormSynapsesFromWindow()
				if err != nil {
					return fmt.Errorf("form synapses: %w", err)
				}
				fmt.Fprintf(out, "formed %d new synapses\n", formed)
			}
			return nil
		},
	}

	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed node id")
	cmd.Flags().Float32Var(&strength, "strength", 1.0, "initial activation strength")
	cmd.Flags().BoolVar(&formSynapses, "form-synapses", false, "also run FormSynapsesFromWindow afterward")
	cmd.MarkFlagRequired("seed")
	return cmd
}
