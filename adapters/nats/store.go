package nats

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/msgstore-go/core/keylock"
	"github.com/codewandler/msgstore-go/core/msgstore"
	"github.com/codewandler/msgstore-go/core/stream"
)

const (
	defaultSubjectPrefix = "msgstore"
	defaultStreamName    = "MSGSTORE"
	defaultLockTimeout   = 5 * time.Second
	defaultMaxRetries    = 5
	defaultFetchBatch    = 256
)

const (
	headerID       = "x-msg-id"
	headerStream   = "x-msg-stream"
	headerType     = "x-msg-type"
	headerPosition = "x-msg-position"
	headerMetadata = "x-msg-metadata"
	headerTime     = "x-msg-time"
)

// RetentionPolicy defines how messages are retained in the stream.
type RetentionPolicy int

const (
	// RetentionLimits keeps messages until limits (MaxMsgs, MaxBytes, MaxAge) are reached.
	RetentionLimits RetentionPolicy = iota
	// RetentionInterest keeps messages only while there are consumers with interest.
	RetentionInterest
)

func (r RetentionPolicy) toJetStream() jetstream.RetentionPolicy {
	if r == RetentionInterest {
		return jetstream.InterestPolicy
	}
	return jetstream.LimitsPolicy
}

type StoreConfig struct {
	Connect       Connector    // Connect is used to create the underlying NATS connection. If nil, ConnectDefault() is used.
	Log           *slog.Logger // Log for diagnostics (optional)
	SubjectPrefix string       // SubjectPrefix is the prefix of all message subjects (default: "msgstore")
	StreamName    string       // StreamName is the JetStream stream holding all messages (default: "MSGSTORE")

	// Storage selects file or memory storage (default: file).
	Storage jetstream.StorageType
	// Retention defines the retention policy for the stream (default: RetentionLimits).
	// Any policy that removes messages breaks gap-free global positions.
	Retention RetentionPolicy
	// MaxAge is the maximum age of messages in the stream, 0 keeps them forever.
	MaxAge time.Duration

	// LockTimeout bounds how long an append waits for another in-process
	// append to the same stream (default: 5s).
	LockTimeout time.Duration
	// MaxRetries is how often an append without an expected version retries
	// after losing a race against another process (default: 5).
	MaxRetries int
	// FetchBatch is the number of messages fetched per request when
	// reading (default: 256).
	FetchBatch int
	// AllowReset permits Reset to delete all messages.
	AllowReset bool
}

// Store is a msgstore.Backend on NATS JetStream. All messages live in one
// JetStream stream; every message stream maps to one subject
//
//	<prefix>.<category>.<base64url(id)>
//
// so a category is the wildcard <prefix>.<category>.*. The JetStream
// sequence is the global position. Payloads are stored verbatim as message
// data, everything else in headers.
//
// Expected versions are enforced by the server with
// Nats-Expected-Last-Subject-Sequence, so concurrent writers in different
// processes cannot both win. Within a process appends to one stream are
// serialized.
//
// Duplicate message ids are detected within the stream's duplicate window
// only (two minutes by default).
type Store struct {
	nc         *natsgo.Conn
	closeNc    func()
	js         jetstream.JetStream
	log        *slog.Logger
	cfg        StoreConfig
	streamCfg  jetstream.StreamConfig
	locks      *keylock.Locker[string]
	mu         sync.RWMutex
	stream     jetstream.Stream
	closeOnce  sync.Once
	maxRetries int
}

func NewStore(cfg StoreConfig) (*Store, error) {
	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}

	nc, closeNatsCon, err := doConnect()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", msgstore.ErrBackendUnavailable, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		closeNatsCon()
		return nil, err
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	if cfg.StreamName = strings.ToUpper(cfg.StreamName); cfg.StreamName == "" {
		cfg.StreamName = defaultStreamName
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = defaultSubjectPrefix
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if cfg.FetchBatch <= 0 {
		cfg.FetchBatch = defaultFetchBatch
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	log = log.With(
		slog.String("backend", "nats_js"),
		slog.String("js_stream", cfg.StreamName),
		slog.String("subject_prefix", cfg.SubjectPrefix),
	)

	s := &Store{
		nc:      nc,
		closeNc: closeNatsCon,
		js:      js,
		log:     log,
		cfg:     cfg,
		streamCfg: jetstream.StreamConfig{
			Name:      cfg.StreamName,
			Subjects:  []string{cfg.SubjectPrefix + ".>"},
			Storage:   cfg.Storage,
			Retention: cfg.Retention.toJetStream(),
			MaxAge:    cfg.MaxAge,
			FirstSeq:  1,
		},
		locks:      keylock.New[string](keylock.WithTimeout(cfg.LockTimeout)),
		maxRetries: maxRetries,
	}

	log.Debug("ensuring stream")
	st, si, err := ensureStream(s.js, s.streamCfg)
	if err != nil {
		closeNatsCon()
		return nil, classify(err)
	}
	s.stream = st
	log.Debug("ensured", slog.Uint64("last_seq", si.State.LastSeq))

	return s, nil
}

func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.js.CleanupPublisher()
		s.closeNc()
		s.log.Debug("closed")
	})
	return nil
}

func (s *Store) getStream() jetstream.Stream {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stream
}

// === append ===

func (s *Store) Append(ctx context.Context, rec msgstore.Record, expect msgstore.ExpectedVersion) (msgstore.AppendResult, error) {
	subject, err := s.subjectForStream(rec.StreamName)
	if err != nil {
		return msgstore.AppendResult{}, err
	}

	var res msgstore.AppendResult
	err = s.locks.Do(ctx, rec.StreamName, func() error {
		for attempt := 0; ; attempt++ {
			r, err := s.appendOnce(ctx, subject, rec, expect)
			if !errors.Is(err, errWrongLastSequence) {
				res = r
				return err
			}
			// another process appended between our read and the publish
			if expect.IsSet() || attempt+1 >= s.maxRetries {
				return fmt.Errorf(
					"%w: stream %s was modified concurrently",
					msgstore.ErrConcurrentModification,
					rec.StreamName,
				)
			}
			s.log.Debug("retrying append", slog.String("stream", rec.StreamName), slog.Int("attempt", attempt+1))
		}
	})
	if errors.Is(err, keylock.ErrTimeout) {
		return msgstore.AppendResult{}, fmt.Errorf(
			"%w: waiting for stream %s: %w",
			msgstore.ErrConcurrentModification,
			rec.StreamName,
			err,
		)
	}
	return res, err
}

var errWrongLastSequence = errors.New("wrong last sequence")

func (s *Store) appendOnce(
	ctx context.Context,
	subject string,
	rec msgstore.Record,
	expect msgstore.ExpectedVersion,
) (msgstore.AppendResult, error) {
	head, lastSeq, err := s.head(ctx, subject)
	if err != nil {
		return msgstore.AppendResult{}, err
	}
	if !expect.Matches(head) {
		return msgstore.AppendResult{}, msgstore.ConflictError(rec.StreamName, expect, head)
	}

	msg, err := encodeMsg(subject, rec, head+1)
	if err != nil {
		return msgstore.AppendResult{}, err
	}

	ack, err := s.js.PublishMsg(
		ctx,
		msg,
		jetstream.WithMsgID(rec.ID),
		jetstream.WithExpectStream(s.cfg.StreamName),
		jetstream.WithExpectLastSequencePerSubject(lastSeq),
	)
	if err != nil {
		if isWrongLastSequence(err) {
			return msgstore.AppendResult{}, errWrongLastSequence
		}
		return msgstore.AppendResult{}, fmt.Errorf("failed to publish to %s: %w", subject, classify(err))
	}
	if ack.Duplicate {
		return msgstore.AppendResult{}, fmt.Errorf("%w: %s", msgstore.ErrDuplicateMessageID, rec.ID)
	}

	s.log.Debug(
		"append",
		slog.String("stream", rec.StreamName),
		slog.Int64("position", head+1),
		slog.Uint64("seq", ack.Sequence),
	)

	return msgstore.AppendResult{
		ID:             rec.ID,
		Position:       head + 1,
		GlobalPosition: int64(ack.Sequence),
	}, nil
}

// head returns the position and sequence of the last message on subject, or
// NoStream and 0 if there is none.
func (s *Store) head(ctx context.Context, subject string) (int64, uint64, error) {
	raw, err := s.getStream().GetLastMsgForSubject(ctx, subject)
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			return msgstore.NoStream, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to get last message for subject %q: %w", subject, classify(err))
	}
	pos, err := strconv.ParseInt(raw.Header.Get(headerPosition), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: seq %d has no position: %w", msgstore.ErrCorruptRead, raw.Sequence, err)
	}
	return pos, raw.Sequence, nil
}

// === read ===

func (s *Store) ReadStream(ctx context.Context, streamName string, q msgstore.StreamQuery) ([]msgstore.Message, error) {
	subject, err := s.subjectForStream(streamName)
	if err != nil {
		return nil, err
	}

	out := make([]msgstore.Message, 0)
	_, lastSeq, err := s.head(ctx, subject)
	if err != nil || lastSeq == 0 {
		return out, err
	}

	err = s.consume(ctx, subject, 1, lastSeq, func(m msgstore.Message) bool {
		if m.Position >= q.FromPosition {
			out = append(out, m)
		}
		return !q.Full(len(out))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ReadCategory(ctx context.Context, category string, q msgstore.CategoryQuery) ([]msgstore.Message, error) {
	if !stream.IsCategory(category) {
		return nil, fmt.Errorf("%w: category %q", msgstore.ErrInvalidStreamName, category)
	}

	out := make([]msgstore.Message, 0)
	info, err := s.getStream().Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream info: %w", classify(err))
	}
	err = s.consume(ctx, s.subjectForCategory(category), uint64(max(q.FromGlobalPosition, 1)), info.State.LastSeq, func(m msgstore.Message) bool {
		if q.Matches(m) {
			out = append(out, m)
		}
		return !q.Full(len(out))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ReadLast(ctx context.Context, streamName string) (*msgstore.Message, error) {
	subject, err := s.subjectForStream(streamName)
	if err != nil {
		return nil, err
	}
	raw, err := s.getStream().GetLastMsgForSubject(ctx, subject)
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last message for subject %q: %w", subject, classify(err))
	}
	m, err := decodeMsg(raw.Header, raw.Data, raw.Sequence)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// consume reads the messages on filter from startSeq up to and including
// lastSeq in sequence order and hands them to fn until fn returns false.
// It uses a short lived pull consumer that is deleted when done.
func (s *Store) consume(ctx context.Context, filter string, startSeq, lastSeq uint64, fn func(msgstore.Message) bool) error {
	if startSeq == 0 {
		startSeq = 1
	}
	if lastSeq < startSeq {
		return nil
	}

	st := s.getStream()
	cons, err := st.CreateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject:     filter,
		DeliverPolicy:     jetstream.DeliverByStartSequencePolicy,
		OptStartSeq:       startSeq,
		AckPolicy:         jetstream.AckNonePolicy,
		MemoryStorage:     true,
		InactiveThreshold: 30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer for %s: %w", filter, classify(err))
	}
	defer func() {
		delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), natsgo.DefaultTimeout)
		defer cancel()
		if err := st.DeleteConsumer(delCtx, cons.CachedInfo().Name); err != nil {
			s.log.Debug("failed to delete read consumer", slog.String("filter", filter), slog.Any("error", err))
		}
	}()

	cursor := startSeq
	for cursor <= lastSeq {
		if err := ctx.Err(); err != nil {
			return err
		}

		mb, err := cons.FetchNoWait(s.cfg.FetchBatch)
		if err != nil {
			return classify(err)
		}

		var (
			n    int
			done bool
		)
		for msg := range mb.Messages() {
			n++
			if done {
				continue
			}
			md, err := msg.Metadata()
			if err != nil {
				return err
			}
			seq := md.Sequence.Stream
			if seq < cursor {
				return fmt.Errorf("%w: consumer for %s went back from seq %d to %d", msgstore.ErrCorruptRead, filter, cursor, seq)
			}
			cursor = seq + 1
			if seq > lastSeq {
				done = true
				continue
			}
			m, err := decodeMsg(msg.Headers(), msg.Data(), seq)
			if err != nil {
				return err
			}
			if !fn(m) || md.NumPending == 0 {
				done = true
			}
		}
		if err := mb.Error(); err != nil {
			return classify(err)
		}
		if n == 0 || done {
			return nil
		}
	}
	return nil
}

// === reset ===

func (s *Store) Reset(ctx context.Context) error {
	if !s.cfg.AllowReset {
		return msgstore.ErrResetNotAllowed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.js.DeleteStream(ctx, s.cfg.StreamName); err != nil && !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to delete stream %s: %w", s.cfg.StreamName, classify(err))
	}
	st, _, err := ensureStream(s.js, s.streamCfg)
	if err != nil {
		return classify(err)
	}
	s.stream = st
	s.log.Info("reset")
	return nil
}

var _ msgstore.Backend = (*Store)(nil)

// === helpers ===

func ensureStream(js jetstream.JetStream, cfg jetstream.StreamConfig) (s jetstream.Stream, si *jetstream.StreamInfo, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*natsgo.DefaultTimeout)
	defer cancel()

	s, err = js.CreateOrUpdateStream(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	si, err = s.Info(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s, si, nil
}

var idEncoding = base64.RawURLEncoding

func (s *Store) subjectForStream(streamName string) (string, error) {
	name, err := stream.Parse(streamName)
	if err != nil {
		return "", err
	}
	return s.cfg.SubjectPrefix + "." + name.Category + "." + idEncoding.EncodeToString([]byte(name.ID)), nil
}

func (s *Store) subjectForCategory(category string) string {
	return s.cfg.SubjectPrefix + "." + category + ".*"
}

func encodeMsg(subject string, rec msgstore.Record, position int64) (*natsgo.Msg, error) {
	md, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	msg := natsgo.NewMsg(subject)
	msg.Header.Set(headerID, rec.ID)
	msg.Header.Set(headerStream, rec.StreamName)
	msg.Header.Set(headerType, rec.Type)
	msg.Header.Set(headerPosition, strconv.FormatInt(position, 10))
	msg.Header.Set(headerMetadata, string(md))
	msg.Header.Set(headerTime, rec.Time.Format(time.RFC3339Nano))
	msg.Data = rec.Data
	return msg, nil
}

func decodeMsg(h natsgo.Header, data []byte, seq uint64) (msgstore.Message, error) {
	corrupt := func(what string, err error) (msgstore.Message, error) {
		return msgstore.Message{}, fmt.Errorf("%w: seq %d: bad %s: %w", msgstore.ErrCorruptRead, seq, what, err)
	}

	pos, err := strconv.ParseInt(h.Get(headerPosition), 10, 64)
	if err != nil {
		return corrupt("position", err)
	}
	var md msgstore.Metadata
	if err := json.Unmarshal([]byte(h.Get(headerMetadata)), &md); err != nil {
		return corrupt("metadata", err)
	}
	at, err := time.Parse(time.RFC3339Nano, h.Get(headerTime))
	if err != nil {
		return corrupt("time", err)
	}

	return msgstore.Message{
		ID:             h.Get(headerID),
		StreamName:     h.Get(headerStream),
		Type:           h.Get(headerType),
		Position:       pos,
		GlobalPosition: int64(seq),
		Data:           append(json.RawMessage(nil), data...),
		Metadata:       md,
		Time:           at.UTC(),
	}, nil
}

func isWrongLastSequence(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return strings.Contains(err.Error(), "wrong last sequence")
}

// classify marks connection failures with msgstore.ErrBackendUnavailable.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, natsgo.ErrConnectionClosed),
		errors.Is(err, natsgo.ErrNoServers),
		errors.Is(err, natsgo.ErrConnectionReconnecting),
		errors.Is(err, natsgo.ErrConnectionDraining),
		errors.Is(err, natsgo.ErrNoResponders),
		errors.Is(err, jetstream.ErrJetStreamNotEnabled),
		errors.Is(err, jetstream.ErrNoStreamResponse):
		return fmt.Errorf("%w: %w", msgstore.ErrBackendUnavailable, err)
	default:
		return err
	}
}
