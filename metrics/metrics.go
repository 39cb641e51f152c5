// Package metrics exports pipeline activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/joejackson1993/cometd"
	"github.com/joejackson1993/cometd/ext/binary"
)

const namespace = "cometd"

// Message kinds used as the kind label of cometd_messages_total.
const (
	KindPlain  = "plain"
	KindBinary = "binary"
	KindChunk  = "chunk"
)

// Directions used as the direction label of cometd_messages_total.
const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
)

// ExtensionName is the registry name conventionally used for Collector.Extension.
const ExtensionName = "metrics"

// Collector counts wire messages and contained failures.
type Collector struct {
	reg      prometheus.Registerer
	messages *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// NewCollector registers the collector's metrics with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		reg: reg,
		messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Messages seen by the extension pipeline",
			},
			[]string{"direction", "kind"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_total",
				Help:      "Failures contained by the extension pipeline",
			},
			[]string{"kind"},
		),
	}
}

// Extension returns an extension counting every message it sees.
// Registered after the binary codec it observes wire messages, so each
// chunk is counted on its own.
func (c *Collector) Extension() cometd.Extension {
	return cometd.ExtensionFuncs{
		OutgoingFunc: func(msg *cometd.Message) ([]*cometd.Message, error) {
			c.messages.WithLabelValues(DirectionOutgoing, Kind(msg)).Inc()
			return []*cometd.Message{msg}, nil
		},
		IncomingFunc: func(msg *cometd.Message) (*cometd.Message, error) {
			c.messages.WithLabelValues(DirectionIncoming, Kind(msg)).Inc()
			return msg, nil
		},
	}
}

// Report implements cometd.Reporter.
func (c *Collector) Report(f cometd.Failure) {
	c.failures.WithLabelValues(f.Kind).Inc()
}

// TrackPending exports fn as the cometd_binary_pending_reassemblies gauge.
func (c *Collector) TrackPending(fn func() int) error {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "binary",
		Name:      "pending_reassemblies",
		Help:      "Partially received binary payloads",
	}, func() float64 {
		return float64(fn())
	})
	return c.reg.Register(gauge)
}

// Kind classifies a wire message.
func Kind(msg *cometd.Message) string {
	if isBinary, _ := msg.Ext[binary.ExtBinary].(bool); !isBinary {
		if _, ok := binary.FromMessageData(msg.Data); ok {
			return KindBinary
		}
		return KindPlain
	}
	if chunked, _ := msg.Ext[binary.ExtChunked].(bool); chunked {
		return KindChunk
	}
	return KindBinary
}
