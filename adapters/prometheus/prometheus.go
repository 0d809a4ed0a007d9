// Package prometheus provides the Prometheus implementation of msgstore.Metrics.
package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/msgstore-go/core/metrics"
	"github.com/codewandler/msgstore-go/core/msgstore"
)

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5,
}

// storeMetrics implements msgstore.Metrics using Prometheus.
type storeMetrics struct {
	// Store metrics
	appendDuration       *prometheus.HistogramVec
	messagesAppended     *prometheus.CounterVec
	concurrencyConflicts *prometheus.CounterVec
	readDuration         *prometheus.HistogramVec
	messagesRead         *prometheus.CounterVec
	corruptReads         *prometheus.CounterVec

	// Consumer metrics
	consumerMessageDuration *prometheus.HistogramVec
	consumerMessages        *prometheus.CounterVec
	consumerPosition        *prometheus.GaugeVec
}

// NewMetrics creates the Prometheus metrics of the message store and
// registers them with reg.
func NewMetrics(reg prometheus.Registerer) msgstore.Metrics {
	m := &storeMetrics{
		appendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "msgstore_append_duration_seconds",
			Help:    "Append latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"category"}),

		messagesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "msgstore_messages_appended_total",
			Help: "Total number of messages appended",
		}, []string{"category"}),

		concurrencyConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "msgstore_concurrency_conflicts_total",
			Help: "Total number of appends rejected by an expected version or write lock",
		}, []string{"category"}),

		readDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "msgstore_read_duration_seconds",
			Help:    "Read latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"kind"}),

		messagesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "msgstore_messages_read_total",
			Help: "Total number of messages returned by reads",
		}, []string{"kind"}),

		corruptReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "msgstore_corrupt_reads_total",
			Help: "Total number of messages whose payload did not match its checksum",
		}, []string{"category"}),

		consumerMessageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "msgstore_consumer_message_duration_seconds",
			Help:    "Message handling time in seconds",
			Buckets: defaultBuckets,
		}, []string{"consumer"}),

		consumerMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "msgstore_consumer_messages_total",
			Help: "Total number of messages handled",
		}, []string{"consumer", "success"}),

		consumerPosition: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "msgstore_consumer_position",
			Help: "Global position of the last message a consumer handled",
		}, []string{"consumer"}),
	}

	reg.MustRegister(
		m.appendDuration,
		m.messagesAppended,
		m.concurrencyConflicts,
		m.readDuration,
		m.messagesRead,
		m.corruptReads,
		m.consumerMessageDuration,
		m.consumerMessages,
		m.consumerPosition,
	)

	return m
}

func (m *storeMetrics) AppendDuration(category string) metrics.Timer {
	return metrics.NewTimer(m.appendDuration.WithLabelValues(category))
}

func (m *storeMetrics) MessagesAppended(category string, count int) {
	m.messagesAppended.WithLabelValues(category).Add(float64(count))
}

func (m *storeMetrics) ConcurrencyConflict(category string) {
	m.concurrencyConflicts.WithLabelValues(category).Inc()
}

func (m *storeMetrics) ReadDuration(kind string) metrics.Timer {
	return metrics.NewTimer(m.readDuration.WithLabelValues(kind))
}

func (m *storeMetrics) MessagesRead(kind string, count int) {
	m.messagesRead.WithLabelValues(kind).Add(float64(count))
}

func (m *storeMetrics) CorruptRead(category string) {
	m.corruptReads.WithLabelValues(category).Inc()
}

func (m *storeMetrics) ConsumerMessageDuration(consumer string) metrics.Timer {
	return metrics.NewTimer(m.consumerMessageDuration.WithLabelValues(consumer))
}

func (m *storeMetrics) ConsumerMessageProcessed(consumer string, success bool) {
	m.consumerMessages.WithLabelValues(consumer, strconv.FormatBool(success)).Inc()
}

func (m *storeMetrics) ConsumerPosition(consumer string, globalPosition int64) {
	m.consumerPosition.WithLabelValues(consumer).Set(float64(globalPosition))
}

var _ msgstore.Metrics = (*storeMetrics)(nil)
