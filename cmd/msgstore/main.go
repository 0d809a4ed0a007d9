// Command msgstore writes, reads and benchmarks a message store.
//
//	msgstore --backend sqlite --dsn sqlite:file:./msgs.db write user-1 Registered '{"name":"ada"}'
//	msgstore --backend sqlite --dsn sqlite:file:./msgs.db read category user
//	NATS_URL=nats://localhost:4222 msgstore --backend nats bench --writers 16 --streams 64
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/codewandler/msgstore-go/core/msgstore"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps store errors to distinct exit codes for scripts.
func exitCode(err error) int {
	switch {
	case errors.Is(err, msgstore.ErrConcurrentModification):
		return 3
	case errors.Is(err, msgstore.ErrBackendUnavailable):
		return 4
	case errors.Is(err, msgstore.ErrCorruptRead):
		return 5
	default:
		return 1
	}
}
