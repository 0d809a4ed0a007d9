package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/codewandler/msgstore-go/core/msgstore"
)

type benchOptions struct {
	*RootOptions
	Writers     int
	Streams     int
	Messages    int
	Expect      bool
	MetricsAddr string
}

func newBenchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &benchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Append concurrently, then verify positions and print throughput",
		Long: `Append concurrently from several writers into a fresh category, then
verify that every stream has gap-free positions and that the category reads
back in strictly increasing global order.

Examples:
  msgstore --backend memory bench
  msgstore --backend nats bench --writers 32 --streams 8 --messages 20000 --expect
  msgstore --backend postgres bench --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Writers, "writers", 8, "concurrent writers")
	cmd.Flags().IntVar(&opts.Streams, "streams", 16, "streams to spread the writes over")
	cmd.Flags().IntVar(&opts.Messages, "messages", 5_000, "total messages to append")
	cmd.Flags().BoolVar(&opts.Expect, "expect", false, "append with expected versions and retry on conflicts")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")

	return cmd
}

func runBench(ctx context.Context, cmd *cobra.Command, opts *benchOptions) error {
	if opts.Writers <= 0 || opts.Streams <= 0 || opts.Messages <= 0 {
		return errors.New("writers, streams and messages must be positive")
	}

	s, closeStore, err := opts.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.MetricsAddr != "" {
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: promhttp.HandlerFor(opts.registry, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				opts.log.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	var (
		out       = cmd.OutOrStdout()
		category  = "bench" + gonanoid.MustGenerate("abcdefghijklmnopqrstuvwxyz", 8)
		next      atomic.Int64
		conflicts atomic.Int64
		group, gc = errgroup.WithContext(ctx)
		startAt   = time.Now()
	)

	fmt.Fprintf(out, "category: %s\n", category)
	fmt.Fprintf(out, " backend: %s\n", opts.Backend)
	fmt.Fprintf(out, " writers: %d, streams: %d, messages: %d\n", opts.Writers, opts.Streams, opts.Messages)

	for w := 0; w < opts.Writers; w++ {
		group.Go(func() error {
			for {
				i := next.Add(1) - 1
				if i >= int64(opts.Messages) {
					return nil
				}
				streamName := fmt.Sprintf("%s-%d", category, i%int64(opts.Streams))
				msg := msgstore.NewMessage{
					Type: "Benchmarked",
					Data: fmt.Appendf(nil, `{"writer":%d,"seq":%d}`, w, i),
				}
				if err := appendOne(gc, s, streamName, msg, opts.Expect, &conflicts); err != nil {
					return err
				}
			}
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	took := time.Since(startAt)
	fmt.Fprintf(out, "   wrote: %d messages in %.3fs (%d msg/s), %d conflicts retried\n",
		opts.Messages, took.Seconds(), int(float64(opts.Messages)/took.Seconds()), conflicts.Load())

	if err := verifyBench(ctx, s, category, opts.Streams, opts.Messages); err != nil {
		return err
	}

	runtime.GC()
	mu := getMemUsage()
	fmt.Fprintf(out, "verified: positions gap-free, global order strictly increasing\n")
	fmt.Fprintf(out, "     mem: %d / %d MiB (alloc / sys)\n", mu.Alloc/1024/1024, mu.Sys/1024/1024)
	return nil
}

func appendOne(ctx context.Context, s *msgstore.Store, streamName string, msg msgstore.NewMessage, expect bool, conflicts *atomic.Int64) error {
	if !expect {
		_, err := s.Append(ctx, streamName, msg)
		return err
	}
	for {
		v, err := s.StreamVersion(ctx, streamName)
		if err != nil {
			return err
		}
		_, err = s.Append(ctx, streamName, msg, msgstore.ExpectVersion(v))
		if !errors.Is(err, msgstore.ErrConcurrentModification) {
			return err
		}
		conflicts.Add(1)
	}
}

func verifyBench(ctx context.Context, s *msgstore.Store, category string, streams, messages int) error {
	var (
		last  int64
		count int
		heads = make(map[string]int64, streams)
	)
	for m, err := range s.IterCategory(ctx, category) {
		if err != nil {
			return err
		}
		if m.GlobalPosition <= last {
			return fmt.Errorf("global position %d after %d", m.GlobalPosition, last)
		}
		last = m.GlobalPosition

		want := heads[m.StreamName]
		if m.Position != want {
			return fmt.Errorf("stream %s: position %d, want %d", m.StreamName, m.Position, want)
		}
		heads[m.StreamName] = want + 1
		count++
	}
	if count != messages {
		return fmt.Errorf("read %d messages, wrote %d", count, messages)
	}
	return nil
}

// === stats helpers ===

type MemUsage struct {
	Alloc uint64 // bytes allocated and not yet freed (heap)
	Sys   uint64 // total bytes obtained from OS
}

func getMemUsage() MemUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemUsage{Alloc: m.Alloc, Sys: m.Sys}
}
