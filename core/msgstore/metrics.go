package msgstore

import "github.com/codewandler/msgstore-go/core/metrics"

// Metrics defines the instrumentation of the store and its consumers.
// Implementations must be safe for concurrent use.
type Metrics interface {
	// Store operations
	AppendDuration(category string) metrics.Timer
	MessagesAppended(category string, count int)
	ConcurrencyConflict(category string)
	ReadDuration(kind string) metrics.Timer
	MessagesRead(kind string, count int)
	CorruptRead(category string)

	// Consumer
	ConsumerMessageDuration(consumer string) metrics.Timer
	ConsumerMessageProcessed(consumer string, success bool)
	ConsumerPosition(consumer string, globalPosition int64)
}

// Read kinds reported to Metrics.
const (
	ReadKindStream   = "stream"
	ReadKindCategory = "category"
	ReadKindLast     = "last"
)

type nopMetrics struct{}

func (nopMetrics) AppendDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) MessagesAppended(string, int)        {}
func (nopMetrics) ConcurrencyConflict(string)          {}
func (nopMetrics) ReadDuration(string) metrics.Timer   { return metrics.NopTimer() }
func (nopMetrics) MessagesRead(string, int)            {}
func (nopMetrics) CorruptRead(string)                  {}

func (nopMetrics) ConsumerMessageDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) ConsumerMessageProcessed(string, bool)        {}
func (nopMetrics) ConsumerPosition(string, int64)               {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
