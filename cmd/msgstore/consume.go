package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	natsadapter "github.com/codewandler/msgstore-go/adapters/nats"
	"github.com/codewandler/msgstore-go/core/msgstore"
)

type consumeOptions struct {
	*RootOptions
	Name         string
	Types        []string
	Member       int64
	Size         int64
	PollInterval time.Duration
	Bucket       string
	JSON         bool
}

func newConsumeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &consumeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "consume <category>",
		Short: "Follow a category and print new messages until interrupted",
		Long: `Follow a category and print new messages until interrupted.

The consumer resumes from its stored position. With the nats backend
positions are kept in a JetStream key-value bucket, otherwise in memory.

Examples:
  msgstore consume user --name printer
  msgstore consume order --member 0 --size 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, closeStore, err := opts.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			consumerOpts := []msgstore.ConsumerOption{
				msgstore.WithConsumerName(opts.Name),
				msgstore.WithLog(opts.log),
				msgstore.WithPollInterval(opts.PollInterval),
			}
			if len(opts.Types) > 0 {
				consumerOpts = append(consumerOpts, msgstore.WithConsumerMessageTypes(opts.Types...))
			}
			if opts.Size > 0 {
				consumerOpts = append(consumerOpts, msgstore.WithConsumerGroup(opts.Member, opts.Size))
			}
			if opts.Backend == "nats" {
				kv, err := natsadapter.NewKvStore(ctx, natsadapter.KvConfig{
					Connect: opts.natsConnector(),
					Bucket:  opts.Bucket,
				})
				if err != nil {
					return err
				}
				defer kv.Close()
				consumerOpts = append(consumerOpts, msgstore.WithPositionStore(msgstore.NewKVPositionStore(kv)))
			}

			out := cmd.OutOrStdout()
			c, err := msgstore.NewConsumer(s, args[0], msgstore.HandlerFunc(func(_ context.Context, m msgstore.Message) error {
				return printMessage(out, m, opts.JSON)
			}), consumerOpts...)
			if err != nil {
				return err
			}
			if err := c.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			c.Stop()
			opts.log.Info("consumer stopped", slog.Int64("position", c.Position()))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "cli", "consumer name, used as position key")
	cmd.Flags().StringSliceVar(&opts.Types, "type", nil, "only these message types")
	cmd.Flags().Int64Var(&opts.Member, "member", 0, "consumer group member (0-based)")
	cmd.Flags().Int64Var(&opts.Size, "size", 0, "consumer group size (0: no group)")
	cmd.Flags().DurationVar(&opts.PollInterval, "poll", 250*time.Millisecond, "poll interval")
	cmd.Flags().StringVar(&opts.Bucket, "bucket", "msgstore_positions", "key-value bucket for positions (nats)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print messages as JSON lines")

	return cmd
}
