package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCommand(rootOpts *RootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all messages and restart positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return errors.New("reset deletes all messages, pass --force to confirm")
			}
			rootOpts.AllowReset = true

			s, closeStore, err := rootOpts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			if err := s.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "store reset")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm deleting all messages")

	return cmd
}
