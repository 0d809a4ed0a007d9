package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/codewandler/msgstore-go/core/msgstore"
)

type readOptions struct {
	*RootOptions
	From  int64
	Limit int
	Types []string
	JSON  bool
}

func newReadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &readOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read a stream or a category",
	}
	cmd.PersistentFlags().Int64Var(&opts.From, "from", 0, "first position (stream) or global position (category)")
	cmd.PersistentFlags().IntVar(&opts.Limit, "limit", 0, "maximum number of messages (0: all)")
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "print messages as JSON lines")

	cmd.AddCommand(&cobra.Command{
		Use:   "stream <stream>",
		Short: "Read the messages of one stream in position order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeStore, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			it := s.IterStream(cmd.Context(), args[0], msgstore.FromPosition(opts.From), msgstore.Limit(opts.Limit))
			for m, err := range it {
				if err != nil {
					return err
				}
				if err := opts.print(cmd.OutOrStdout(), m); err != nil {
					return err
				}
			}
			return nil
		},
	})

	categoryCmd := &cobra.Command{
		Use:   "category <category>",
		Short: "Read the messages of all streams in a category in global order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeStore, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			readOpts := []msgstore.ReadOption{
				msgstore.FromGlobalPosition(max(opts.From, 1)),
				msgstore.Limit(opts.Limit),
			}
			if len(opts.Types) > 0 {
				readOpts = append(readOpts, msgstore.MessageTypes(opts.Types...))
			}
			for m, err := range s.IterCategory(cmd.Context(), args[0], readOpts...) {
				if err != nil {
					return err
				}
				if err := opts.print(cmd.OutOrStdout(), m); err != nil {
					return err
				}
			}
			return nil
		},
	}
	categoryCmd.Flags().StringSliceVar(&opts.Types, "type", nil, "only these message types")
	cmd.AddCommand(categoryCmd)

	return cmd
}

func (o *readOptions) print(w io.Writer, m msgstore.Message) error {
	return printMessage(w, m, o.JSON)
}

func printMessage(w io.Writer, m msgstore.Message, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(m)
	}
	_, err := fmt.Fprintf(w, "%6d %-24s %4d %-20s %s\n", m.GlobalPosition, m.StreamName, m.Position, m.Type, m.Data)
	return err
}
