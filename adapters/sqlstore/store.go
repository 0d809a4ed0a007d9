package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codewandler/msgstore-go/core/msgstore"
	"github.com/codewandler/msgstore-go/core/stream"
)

// Store is a msgstore.Backend on a SQL database. Appends run in one
// transaction that first bumps the global sequence row; the row lock it
// takes serializes writers until commit.
type Store struct {
	db      *sql.DB
	dialect dialect
	cfg     Config
	log     *slog.Logger
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	s.log.Debug("closing")
	return s.db.Close()
}

// === append ===

func (s *Store) Append(ctx context.Context, rec msgstore.Record, expect msgstore.ExpectedVersion) (res msgstore.AppendResult, err error) {
	md, err := json.Marshal(rec.Metadata)
	if err != nil {
		return res, fmt.Errorf("%w: failed to encode metadata: %w", msgstore.ErrInvalidMessage, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, classify(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.dialect == dialectPostgres {
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.cfg.LockTimeout.Milliseconds())); err != nil {
			return res, classify(err)
		}
	}

	var globalPosition int64
	err = tx.QueryRowContext(ctx, `UPDATE msgstore_sequence SET head = head + 1 WHERE id = 1 RETURNING head`).Scan(&globalPosition)
	if err != nil {
		return res, fmt.Errorf("failed to acquire global position: %w", classify(err))
	}

	head := msgstore.NoStream
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT head FROM msgstore_streams WHERE stream_name = ?`), rec.StreamName).Scan(&head)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return res, classify(err)
	}
	if !expect.Matches(head) {
		return res, msgstore.ConflictError(rec.StreamName, expect, head)
	}

	var exists int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM msgstore_messages WHERE id = ?`), rec.ID).Scan(&exists)
	switch {
	case err == nil:
		return res, fmt.Errorf("%w: %s", msgstore.ErrDuplicateMessageID, rec.ID)
	case !errors.Is(err, sql.ErrNoRows):
		return res, classify(err)
	}

	position := head + 1
	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO msgstore_messages (
		global_position, id, stream_name, category, type, position, data, metadata, stored_at, consumer_hash
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		globalPosition,
		rec.ID,
		rec.StreamName,
		rec.Category,
		rec.Type,
		position,
		string(rec.Data),
		string(md),
		rec.Time.UnixMicro(),
		stream.Hash64(stream.CardinalID(rec.StreamName)),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return res, fmt.Errorf("%w: stream %s position %d is taken: %w", msgstore.ErrConcurrentModification, rec.StreamName, position, err)
		}
		return res, classify(err)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO msgstore_streams (stream_name, head) VALUES (?, ?)
		ON CONFLICT (stream_name) DO UPDATE SET head = excluded.head`), rec.StreamName, position)
	if err != nil {
		return res, classify(err)
	}

	if err = tx.Commit(); err != nil {
		return res, classify(err)
	}

	s.log.Debug(
		"append",
		slog.String("stream", rec.StreamName),
		slog.Int64("position", position),
		slog.Int64("global_position", globalPosition),
	)

	return msgstore.AppendResult{ID: rec.ID, Position: position, GlobalPosition: globalPosition}, nil
}

// === read ===

func (s *Store) ReadStream(ctx context.Context, streamName string, q msgstore.StreamQuery) ([]msgstore.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM msgstore_messages WHERE stream_name = ? AND position >= ? ORDER BY position`
	args := []any{streamName, max(q.FromPosition, 0)}
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	return s.query(ctx, query, args...)
}

func (s *Store) ReadCategory(ctx context.Context, category string, q msgstore.CategoryQuery) ([]msgstore.Message, error) {
	var (
		b    strings.Builder
		args = []any{category, max(q.FromGlobalPosition, 1)}
	)
	b.WriteString(`SELECT ` + messageColumns + ` FROM msgstore_messages WHERE category = ? AND global_position >= ?`)
	if n := len(q.MessageTypes); n > 0 {
		b.WriteString(` AND type IN (` + placeholders(n) + `)`)
		for _, t := range q.MessageTypes {
			args = append(args, t)
		}
	}
	if g := q.ConsumerGroup; g != nil {
		if err := g.Validate(); err != nil {
			return nil, err
		}
		b.WriteString(` AND consumer_hash % ? = ?`)
		args = append(args, g.Size, g.Member)
	}
	b.WriteString(` ORDER BY global_position`)
	if q.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}
	return s.query(ctx, b.String(), args...)
}

func (s *Store) ReadLast(ctx context.Context, streamName string) (*msgstore.Message, error) {
	msgs, err := s.query(ctx, `SELECT `+messageColumns+` FROM msgstore_messages WHERE stream_name = ? ORDER BY position DESC LIMIT 1`, streamName)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return &msgs[0], nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]msgstore.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]msgstore.Message, 0)
	for rows.Next() {
		var (
			m        msgstore.Message
			data, md string
			storedAt int64
		)
		if err := rows.Scan(&m.ID, &m.StreamName, &m.Type, &m.Position, &m.GlobalPosition, &data, &md, &storedAt); err != nil {
			return nil, classify(err)
		}
		if err := json.Unmarshal([]byte(md), &m.Metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata of %s: %w", msgstore.ErrCorruptRead, m.ID, err)
		}
		m.Data = json.RawMessage(data)
		m.Time = time.UnixMicro(storedAt).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// === reset ===

func (s *Store) Reset(ctx context.Context) (err error) {
	if !s.cfg.AllowReset {
		return msgstore.ErrResetNotAllowed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		`UPDATE msgstore_sequence SET head = 0 WHERE id = 1`,
		`DELETE FROM msgstore_messages`,
		`DELETE FROM msgstore_streams`,
	} {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return classify(err)
		}
	}
	if err = tx.Commit(); err != nil {
		return classify(err)
	}
	s.log.Info("reset")
	return nil
}

var _ msgstore.Backend = (*Store)(nil)
