package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joejackson1993/cometd"
	"github.com/joejackson1993/cometd/ext/binary"
)

func TestKind(t *testing.T) {
	assert.Equal(t, KindPlain, Kind(&cometd.Message{Data: "x"}))
	assert.Equal(t, KindBinary, Kind(&cometd.Message{Data: &binary.BinaryData{}}))
	assert.Equal(t, KindBinary, Kind(&cometd.Message{Ext: map[string]any{binary.ExtBinary: true}}))
	assert.Equal(t, KindChunk, Kind(&cometd.Message{Ext: map[string]any{binary.ExtBinary: true, binary.ExtChunked: true}}))
}

func TestCollector_Pipeline(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	registry := cometd.NewRegistry(nil, nil, c, cometd.Forward)
	codec, err := binary.New(binary.ChunkSizeOption(4), binary.ReporterOption(c))
	require.NoError(t, err)
	defer codec.Unregistered()

	require.NoError(t, registry.Register(binary.Name, codec))
	require.NoError(t, registry.Register(ExtensionName, c.Extension()))

	wire := registry.Outgoing(&cometd.Message{Channel: "/f", ID: "1", Data: &binary.BinaryData{Data: make([]byte, 9)}})
	require.Len(t, wire, 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(c.messages.WithLabelValues(DirectionOutgoing, KindChunk)))

	registry.Outgoing(&cometd.Message{Channel: "/f", Data: "hi"})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.messages.WithLabelValues(DirectionOutgoing, KindPlain)))

	for _, m := range wire {
		registry.Incoming(m)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(c.messages.WithLabelValues(DirectionIncoming, KindChunk)))

	// seq 1 alone is a malformed chunk
	registry.Incoming(wire[1])
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues(cometd.KindMalformedChunk)))
}

func TestCollector_TrackPending(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	pending := 0
	require.NoError(t, c.TrackPending(func() int { return pending }))
	pending = 2

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() == "cometd_binary_pending_reassemblies" {
			found = true
			assert.Equal(t, 2.0, mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found)

	assert.Error(t, c.TrackPending(func() int { return 0 }))
}

func TestCollector_Report(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Report(cometd.Failure{Kind: cometd.KindReassemblyTimeout})
	c.Report(cometd.Failure{Kind: cometd.KindReassemblyTimeout})
	c.Report(cometd.Failure{Kind: cometd.KindEncodeDecode})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.failures.WithLabelValues(cometd.KindReassemblyTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues(cometd.KindEncodeDecode)))
}
