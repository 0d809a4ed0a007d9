// Package msgstore provides an append-only message store partitioned into
// streams and categories.
//
// # Streams and categories
//
// Every message belongs to a stream named "<category>-<id>", for example
// "account-42" or "account:command-42" (see package stream). A stream holds
// the history of one entity; a category groups all streams of one entity
// type and is the unit read by event handlers and process managers.
//
// # Positions
//
// Each message gets a 0-based Position within its stream and a 1-based
// GlobalPosition within the whole store. Both are gap-free and strictly
// increasing. Category reads return messages in global position order.
//
// # Appending
//
// [Store.Append] stores one message. Pass [ExpectVersion] to append only if
// the stream head is still at the position the caller last saw; otherwise
// [ErrConcurrentModification] is returned and nothing is written:
//
//	store := msgstore.New(msgstore.NewMemoryBackend())
//	pos, err := store.Append(ctx, "account-42", msgstore.NewMessage{
//	    Type: "Deposited",
//	    Data: json.RawMessage(`{"amount":10}`),
//	}, msgstore.ExpectVersion(3))
//
// The store never retries a conflicting append; callers reload and retry.
//
// # Reading
//
//	msgs, err := store.ReadStream(ctx, "account-42", msgstore.FromPosition(0))
//	msgs, err := store.ReadCategory(ctx, "account",
//	    msgstore.FromGlobalPosition(100),
//	    msgstore.MessageTypes("Deposited", "Withdrawn"),
//	    msgstore.Limit(50),
//	)
//
// [Store.IterStream] and [Store.IterCategory] page through large results
// lazily. [Consumer] polls a category and hands each message to a [Handler].
//
// # Backends
//
// [MemoryBackend] is the reference implementation. Durable backends live in
// adapters/nats (JetStream) and adapters/sql (PostgreSQL, SQLite). All of
// them pass the suite in package msgstoretest.
package msgstore
