package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robmorgan/halolink/clock"
)

// NewNowCommand prints the process clock.
func NewNowCommand(_ *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Print the clock in microseconds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), clock.Now().Micros())
			return nil
		},
	}
}
