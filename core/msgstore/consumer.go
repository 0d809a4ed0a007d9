package msgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codewandler/msgstore-go/core/stream"
)

// Handler processes messages read by a Consumer.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Consumer feeds the messages of one category to a Handler in global
// position order. It polls the store, resumes from the position kept in its
// PositionStore and stores its progress periodically and on Stop.
//
// A failing handler is logged and the consumer moves on.
type Consumer struct {
	store     *Store
	category  string
	handler   Handler
	opts      consumerOpts
	log       *slog.Logger
	position  atomic.Int64
	stored    atomic.Int64
	pending   int
	started   atomic.Bool
	closeChan chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

func NewConsumer(store *Store, category string, handler Handler, opts ...ConsumerOption) (*Consumer, error) {
	if _, err := stream.ParseCategory(category); err != nil {
		return nil, err
	}
	options := newConsumerOpts(opts...)
	if g := options.group; g != nil {
		if err := g.Validate(); err != nil {
			return nil, err
		}
	}

	return &Consumer{
		store:    store,
		category: category,
		handler:  handler,
		opts:     options,
		log: options.log.With(
			slog.String("consumer", options.name),
			slog.String("category", category),
		),
		closeChan: make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

func (c *Consumer) Name() string { return c.opts.name }

// Position returns the global position of the last processed message.
func (c *Consumer) Position() int64 { return c.position.Load() }

// Start loads the stored position and starts polling in the background.
func (c *Consumer) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("consumer already started")
	}

	pos, err := c.opts.positions.GetPosition(ctx, c.opts.name)
	if err != nil && !errors.Is(err, ErrPositionNotFound) {
		return fmt.Errorf("failed to load position: %w", err)
	}
	c.position.Store(pos)
	c.stored.Store(pos)

	c.log.Info("starting", slog.Int64("position", pos))

	go c.run(ctx)
	return nil
}

// Stop stops polling, waits for the current batch and stores the position.
func (c *Consumer) Stop() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		if c.started.Load() {
			<-c.done
		}
	})
}

func (c *Consumer) run(ctx context.Context) {
	defer func() {
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := c.storePosition(storeCtx); err != nil {
			c.log.Error("failed to store position", slog.Any("error", err))
		}
		c.log.Info("stopped", slog.Int64("position", c.position.Load()))
		close(c.done)
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeChan:
			return
		case <-timer.C:
		}

		n, err := c.poll(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return
		case err != nil:
			c.log.Error("poll failed", slog.Any("error", err))
			timer.Reset(c.opts.pollInterval)
		case n == c.opts.batchSize:
			// more may be waiting
			timer.Reset(0)
		default:
			timer.Reset(c.opts.pollInterval)
		}
	}
}

func (c *Consumer) poll(ctx context.Context) (int, error) {
	opts := []ReadOption{
		FromGlobalPosition(c.position.Load() + 1),
		Limit(c.opts.batchSize),
	}
	if len(c.opts.messageTypes) > 0 {
		opts = append(opts, MessageTypes(c.opts.messageTypes...))
	}
	if g := c.opts.group; g != nil {
		opts = append(opts, InConsumerGroup(g.Member, g.Size))
	}

	msgs, err := c.store.ReadCategory(ctx, c.category, opts...)
	if err != nil {
		return 0, err
	}

	for _, m := range msgs {
		select {
		case <-c.closeChan:
			return 0, nil
		default:
		}

		c.handle(ctx, m)
		c.position.Store(m.GlobalPosition)
		c.opts.metrics.ConsumerPosition(c.opts.name, m.GlobalPosition)

		c.pending++
		if c.pending >= c.opts.positionUpdateInterval {
			if err := c.storePosition(ctx); err != nil {
				c.log.Error("failed to store position", slog.Any("error", err))
			}
		}
	}
	return len(msgs), nil
}

func (c *Consumer) handle(ctx context.Context, m Message) {
	defer c.opts.metrics.ConsumerMessageDuration(c.opts.name).ObserveDuration()

	if err := c.handler.Handle(ctx, m); err != nil {
		c.opts.metrics.ConsumerMessageProcessed(c.opts.name, false)
		c.log.Error("handler failed", m.SlogAttr(), slog.Any("error", err))
		return
	}
	c.opts.metrics.ConsumerMessageProcessed(c.opts.name, true)
}

func (c *Consumer) storePosition(ctx context.Context) error {
	pos := c.position.Load()
	if pos == c.stored.Load() {
		return nil
	}
	if err := c.opts.positions.PutPosition(ctx, c.opts.name, pos); err != nil {
		return err
	}
	c.stored.Store(pos)
	c.pending = 0
	c.log.Debug("stored position", slog.Int64("position", pos))
	return nil
}
