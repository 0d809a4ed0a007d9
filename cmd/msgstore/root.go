package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	natsadapter "github.com/codewandler/msgstore-go/adapters/nats"
	promadapter "github.com/codewandler/msgstore-go/adapters/prometheus"
	"github.com/codewandler/msgstore-go/adapters/sqlstore"
	"github.com/codewandler/msgstore-go/core/msgstore"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Backend    string
	DSN        string
	Verbose    bool
	Trace      bool
	AllowReset bool

	log      *slog.Logger
	registry *prometheus.Registry
}

// ValidBackends defines the allowed backends.
var ValidBackends = []string{"memory", "nats", "postgres", "sqlite"}

func newRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "msgstore",
		Short:         "Append-only message store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			opts.log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			opts.registry = prometheus.NewRegistry()
			for _, b := range ValidBackends {
				if b == opts.Backend {
					return nil
				}
			}
			return fmt.Errorf("invalid backend %q: must be one of %v", opts.Backend, ValidBackends)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", getEnv("MSGSTORE_BACKEND", "sqlite"), "storage backend (memory|nats|postgres|sqlite)")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "database url or NATS url (default: $DATABASE_URL / $NATS_URL)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().BoolVar(&opts.Trace, "trace", false, "print OpenTelemetry spans to stderr")

	cmd.AddCommand(newWriteCommand(opts))
	cmd.AddCommand(newReadCommand(opts))
	cmd.AddCommand(newConsumeCommand(opts))
	cmd.AddCommand(newResetCommand(opts))
	cmd.AddCommand(newBenchCommand(opts))

	return cmd
}

// openStore opens the configured backend and wraps it in a Store. The
// returned close function flushes spans and closes the store.
func (o *RootOptions) openStore(ctx context.Context) (*msgstore.Store, func(), error) {
	backend, err := o.openBackend(ctx)
	if err != nil {
		return nil, nil, err
	}

	storeOpts := []msgstore.Option{
		msgstore.WithLog(o.log),
		msgstore.WithMetrics(promadapter.NewMetrics(o.registry)),
	}

	var tp *sdktrace.TracerProvider
	if o.Trace {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			_ = backend.Close()
			return nil, nil, err
		}
		tp = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
		storeOpts = append(storeOpts, msgstore.WithTracerProvider(tp))
	}

	s := msgstore.New(backend, storeOpts...)
	return s, func() {
		if err := s.Close(); err != nil {
			o.log.Error("failed to close store", slog.Any("error", err))
		}
		if tp != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}
	}, nil
}

func (o *RootOptions) openBackend(ctx context.Context) (msgstore.Backend, error) {
	switch o.Backend {
	case "memory":
		return msgstore.NewMemoryBackend(), nil
	case "nats":
		return natsadapter.NewStore(natsadapter.StoreConfig{
			Connect:    o.natsConnector(),
			Log:        o.log,
			AllowReset: o.AllowReset,
		})
	default:
		dsn := o.DSN
		if dsn == "" {
			dsn = os.Getenv("DATABASE_URL")
		}
		if dsn == "" && o.Backend == "sqlite" {
			dsn = "sqlite:file:msgstore.db"
		}
		return sqlstore.Open(ctx, sqlstore.Config{
			DatabaseURL: dsn,
			Log:         o.log,
			AllowReset:  o.AllowReset,
		})
	}
}

func (o *RootOptions) natsConnector() natsadapter.Connector {
	if o.DSN != "" {
		return natsadapter.ReuseConnection(natsadapter.ConnectURL(o.DSN))
	}
	return natsadapter.ReuseConnection(natsadapter.ConnectDefault())
}

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}
