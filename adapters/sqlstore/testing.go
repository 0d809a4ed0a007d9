package sqlstore

import (
	"context"
	"path/filepath"

	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

type Testing interface {
	require.TestingT
	Context() context.Context
	Logf(format string, args ...any)
	Skipf(format string, args ...any)
	Cleanup(func())
	TempDir() string
}

// NewTestPostgres starts a postgres container and returns its database url.
// The test is skipped if no container runtime is available.
func NewTestPostgres(t Testing) string {
	ctx := t.Context()
	pg, err := tcpostgres.Run(
		ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("msgstore"),
		tcpostgres.WithUsername("msgstore"),
		tcpostgres.WithPassword("msgstore"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("skip: cannot start postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := pg.Terminate(context.Background()); err != nil {
			t.Errorf("failed to terminate container: %s", err.Error())
		}
	})

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	t.Logf("postgres: %s", dsn)
	return dsn
}

// NewTestSQLite returns the database url of a fresh sqlite file in a
// temporary directory.
func NewTestSQLite(t Testing) string {
	return "sqlite:file:" + filepath.Join(t.TempDir(), "msgstore.db")
}
