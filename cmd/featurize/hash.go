package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/hasher"
)

func newHashCmd() *cobra.Command {
	var seed uint64
	var hex bool
	cmd := &cobra.Command{
		Use:   "hash <string>",
		Short: "Print the hash of a string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h := hasher.HashString(args[0], seed)
			if hex {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "0x%08X\n", h)
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), h)
			return err
		},
	}
	cmd.Flags().Uint64Var(&seed, "seed", 0, "hash seed")
	cmd.Flags().BoolVar(&hex, "hex", false, "print in hexadecimal")
	return cmd
}
