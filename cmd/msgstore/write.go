package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codewandler/msgstore-go/core/msgstore"
)

type writeOptions struct {
	*RootOptions
	Expect        int64
	ID            string
	CorrelationID string
	CausationID   string
}

func newWriteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &writeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "write <stream> <type> [json]",
		Short: "Append a message to a stream",
		Long: `Append a message to a stream and print its positions.

Examples:
  msgstore write user-1 Registered '{"name":"ada"}'
  msgstore write account-7 Deposited '{"amount":10}' --expect 3
  msgstore write account-8 Opened --expect -1`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeStore, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			msg := msgstore.NewMessage{
				ID:   opts.ID,
				Type: args[1],
				Metadata: msgstore.Metadata{
					CorrelationID: opts.CorrelationID,
					CausationID:   opts.CausationID,
				},
			}
			if len(args) == 3 {
				msg.Data = json.RawMessage(args[2])
			}

			var appendOpts []msgstore.AppendOption
			if cmd.Flags().Changed("expect") {
				appendOpts = append(appendOpts, msgstore.ExpectVersion(opts.Expect))
			}

			res, err := s.AppendWithResult(cmd.Context(), args[0], msg, appendOpts...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s position=%d global_position=%d id=%s\n", args[0], res.Position, res.GlobalPosition, res.ID)
			return nil
		},
	}

	cmd.Flags().Int64Var(&opts.Expect, "expect", 0, "expected stream version (-1: stream must not exist)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "message id (default: random UUID)")
	cmd.Flags().StringVar(&opts.CorrelationID, "correlation-id", "", "correlation id")
	cmd.Flags().StringVar(&opts.CausationID, "causation-id", "", "causation id")

	return cmd
}
