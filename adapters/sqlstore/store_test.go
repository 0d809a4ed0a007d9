package sqlstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/msgstore-go/core/msgstore"
	"github.com/codewandler/msgstore-go/core/msgstore/msgstoretest"
)

func openTestStore(t *testing.T, databaseURL string, allowReset bool) *Store {
	s, err := Open(t.Context(), Config{
		DatabaseURL: databaseURL,
		LockTimeout: 2 * time.Second,
		AllowReset:  allowReset,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite(t *testing.T) {
	msgstoretest.Run(t, func(t *testing.T) msgstore.Backend {
		return openTestStore(t, NewTestSQLite(t), true)
	})

	t.Run("reopen keeps messages", func(t *testing.T) {
		url := NewTestSQLite(t)
		s := msgstore.New(openTestStore(t, url, false))
		_, err := s.Write(t.Context(), "user-1", "Registered", nil, msgstore.Metadata{})
		require.NoError(t, err)
		require.NoError(t, s.Close())

		s = msgstore.New(openTestStore(t, url, false))
		res, err := s.AppendWithResult(t.Context(), "user-1", msgstore.NewMessage{Type: "Renamed"}, msgstore.ExpectVersion(0))
		require.NoError(t, err)
		require.Equal(t, int64(1), res.Position)
		require.Equal(t, int64(2), res.GlobalPosition)
	})

	t.Run("reset not allowed", func(t *testing.T) {
		s := msgstore.New(openTestStore(t, NewTestSQLite(t), false))
		require.ErrorIs(t, s.Reset(t.Context()), msgstore.ErrResetNotAllowed)
	})
}

func TestPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skip: postgres container in short mode")
	}
	url := NewTestPostgres(t)

	msgstoretest.Run(t, func(t *testing.T) msgstore.Backend {
		s := openTestStore(t, url, true)
		require.NoError(t, s.Reset(t.Context()))
		return s
	})

	t.Run("concurrent writers on separate pools", func(t *testing.T) {
		a := openTestStore(t, url, true)
		require.NoError(t, a.Reset(t.Context()))
		b := openTestStore(t, url, false)

		sa, sb := msgstore.New(a), msgstore.New(b)
		_, err := sa.Append(t.Context(), "account-1", msgstore.NewMessage{Type: "Opened"}, msgstore.ExpectNoStream())
		require.NoError(t, err)
		_, err = sb.Append(t.Context(), "account-1", msgstore.NewMessage{Type: "Opened"}, msgstore.ExpectNoStream())
		require.ErrorIs(t, err, msgstore.ErrConcurrentModification)
	})
}

func TestParseDatabaseURL(t *testing.T) {
	for _, tc := range []struct {
		in      string
		drv     string
		dsn     string
		dialect dialect
	}{
		{"postgres://u:p@localhost:5432/db?sslmode=disable", "pgx", "postgres://u:p@localhost:5432/db?sslmode=disable", dialectPostgres},
		{"postgresql://localhost/db", "pgx", "postgresql://localhost/db", dialectPostgres},
		{"host=localhost user=u dbname=db", "pgx", "host=localhost user=u dbname=db", dialectPostgres},
		{"sqlite:file:x.db", "sqlite3", "file:x.db?_txlock=immediate&_pragma=busy_timeout(5000)", dialectSQLite},
		{"SQLite:file:x.db?_pragma=busy_timeout(100)", "sqlite3", "file:x.db?_pragma=busy_timeout(100)&_txlock=immediate", dialectSQLite},
		{"sqlite:", "sqlite3", "file:msgstore.db?_txlock=immediate&_pragma=busy_timeout(5000)", dialectSQLite},
	} {
		t.Run(tc.in, func(t *testing.T) {
			drv, dsn, d, err := parseDatabaseURL(tc.in, 5*time.Second)
			require.NoError(t, err)
			require.Equal(t, tc.drv, drv)
			require.Equal(t, tc.dsn, dsn)
			require.Equal(t, tc.dialect, d)
		})
	}

	for _, in := range []string{"mysql://localhost/db", "whatever"} {
		_, _, _, err := parseDatabaseURL(in, time.Second)
		require.Error(t, err, in)
	}
}

func TestParseDatabaseURL_LockTimeout(t *testing.T) {
	_, dsn, _, err := parseDatabaseURL("sqlite:file:x.db", 250*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "file:x.db?_txlock=immediate&_pragma=busy_timeout(250)", dsn)

	_, dsn, _, err = parseDatabaseURL("sqlite:file:x.db?_txlock=deferred", 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "file:x.db?_txlock=deferred&_pragma=busy_timeout(2000)", dsn)
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: dialectPostgres}
	require.Equal(t, "a = $1 AND b IN ($2, $3)", pg.rebind("a = ? AND b IN ("+placeholders(2)+")"))

	lite := &Store{dialect: dialectSQLite}
	require.Equal(t, "a = ?", lite.rebind("a = ?"))
}
