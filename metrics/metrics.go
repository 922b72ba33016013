// Package metrics turns bridge events into prometheus counters.
package metrics

import (
	"strconv"

	"gobridgecore/events"

	"github.com/prometheus/client_golang/prometheus"
)

type BridgeMetrics struct {
	eventCount          *prometheus.CounterVec
	createdMessageCount *prometheus.CounterVec
	statusChangeCount   *prometheus.CounterVec
	blobMessageCount    *prometheus.CounterVec
	compressedBytes     *prometheus.CounterVec
	retryCount          *prometheus.CounterVec
	pendingCount        *prometheus.GaugeVec
	overdueCount        *prometheus.GaugeVec
}

// Backlog is the pending work of one destination chain
type Backlog struct {
	Pending int
	Overdue int
}

func NewBridgeMetrics(registerer prometheus.Registerer) *BridgeMetrics {
	m := BridgeMetrics{
		eventCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_event_count",
				Help: "Number of emitted bridge events",
			},
			[]string{"kind"},
		),
		createdMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "created_message_count",
				Help: "Number of cross-chain messages created",
			},
			[]string{"destination_chain_id"},
		),
		statusChangeCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "message_status_change_count",
				Help: "Number of status transitions reported by relayers",
			},
			[]string{"destination_chain_id", "status"},
		),
		blobMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blob_encoded_message_count",
				Help: "Number of messages stored in blob encoding",
			},
			[]string{"destination_chain_id"},
		),
		compressedBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "compressor_bytes",
				Help: "Bytes seen by the compressor before and after encoding",
			},
			[]string{"data_type", "stage"},
		),
		retryCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "message_retry_count",
				Help: "Number of failed messages put back to pending",
			},
			[]string{"destination_chain_id"},
		),
		pendingCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pending_message_count",
				Help: "Number of messages awaiting a relayer outcome",
			},
			[]string{"destination_chain_id"},
		),
		overdueCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "overdue_message_count",
				Help: "Number of pending messages past twice their expected confirmation time",
			},
			[]string{"destination_chain_id"},
		),
	}

	registerer.MustRegister(m.eventCount)
	registerer.MustRegister(m.createdMessageCount)
	registerer.MustRegister(m.statusChangeCount)
	registerer.MustRegister(m.blobMessageCount)
	registerer.MustRegister(m.compressedBytes)
	registerer.MustRegister(m.retryCount)
	registerer.MustRegister(m.pendingCount)
	registerer.MustRegister(m.overdueCount)

	return &m
}

// RegisterDropped exposes the events lost by slow bus subscribers
func RegisterDropped(registerer prometheus.Registerer, bus *events.Bus) {
	registerer.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "dropped_event_count",
			Help: "Number of events lost to full subscriber buffers",
		},
		func() float64 { return float64(bus.Dropped()) },
	))
}

// Observe updates the counters for one event, it is meant to be a bus handler
func (m *BridgeMetrics) Observe(ev events.Event) {
	m.eventCount.WithLabelValues(string(ev.Kind)).Inc()
	chain := strconv.FormatUint(ev.ChainID, 10)

	switch ev.Kind {
	case events.MessageCreated:
		m.createdMessageCount.WithLabelValues(chain).Inc()
	case events.MessageStatusChanged:
		m.statusChangeCount.WithLabelValues(chain, ev.Attrs["to"]).Inc()
	case events.BlobEncodingUsed:
		m.blobMessageCount.WithLabelValues(chain).Inc()
	case events.MessageRetried:
		m.retryCount.WithLabelValues(chain).Inc()
	case events.DataCompressed:
		dt := ev.Attrs["dataType"]
		if n, err := strconv.ParseFloat(ev.Attrs["originalSize"], 64); err == nil {
			m.compressedBytes.WithLabelValues(dt, "original").Add(n)
		}
		if n, err := strconv.ParseFloat(ev.Attrs["compressedSize"], 64); err == nil {
			m.compressedBytes.WithLabelValues(dt, "compressed").Add(n)
		}
	}
}

// SetBacklog replaces the pending gauges, chains missing from backlog drop to zero
func (m *BridgeMetrics) SetBacklog(backlog map[uint64]Backlog) {
	m.pendingCount.Reset()
	m.overdueCount.Reset()
	for chainID, b := range backlog {
		chain := strconv.FormatUint(chainID, 10)
		m.pendingCount.WithLabelValues(chain).Set(float64(b.Pending))
		m.overdueCount.WithLabelValues(chain).Set(float64(b.Overdue))
	}
}
