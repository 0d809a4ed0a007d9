package sqlstore

import (
	"context"
	"strconv"
	"strings"
)

// Both dialects understand this schema. The single row in msgstore_sequence
// hands out global positions; updating it inside the append transaction
// serializes writers, so commit order is global position order.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS msgstore_messages (
		global_position BIGINT       PRIMARY KEY,
		id              VARCHAR(255) NOT NULL UNIQUE,
		stream_name     VARCHAR(255) NOT NULL,
		category        VARCHAR(255) NOT NULL,
		type            VARCHAR(255) NOT NULL,
		position        BIGINT       NOT NULL,
		data            TEXT         NOT NULL,
		metadata        TEXT         NOT NULL,
		stored_at       BIGINT       NOT NULL,
		consumer_hash   BIGINT       NOT NULL,
		UNIQUE (stream_name, position)
	)`,
	`CREATE INDEX IF NOT EXISTS msgstore_messages_category_idx ON msgstore_messages (category, global_position)`,
	`CREATE TABLE IF NOT EXISTS msgstore_streams (
		stream_name VARCHAR(255) PRIMARY KEY,
		head        BIGINT       NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS msgstore_sequence (
		id   INTEGER PRIMARY KEY,
		head BIGINT  NOT NULL
	)`,
	`INSERT INTO msgstore_sequence (id, head) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
}

const messageColumns = `id, stream_name, type, position, global_position, data, metadata, stored_at`

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return classify(err)
		}
	}
	return nil
}

// rebind rewrites "?" placeholders to "$n" for postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var (
		b strings.Builder
		n = 0
	)
	b.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
