package cometd

import (
	"errors"
	"testing"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailure_Error(t *testing.T) {
	boom := errors.New("boom")
	f := Failure{Kind: KindMalformedChunk, Extension: "binary", Channel: "/c", MessageID: "42", Err: boom}

	assert.Equal(t, "malformed_chunk: extension=binary channel=/c id=42: boom", f.Error())
	assert.ErrorIs(t, f, boom)
}

func TestLogReporter(t *testing.T) {
	mock := &mockLogger{}
	LogReporter(mock).Report(Failure{Kind: KindEncodeDecode, Channel: "/c", Err: errors.New("bad")})

	assert.Equal(t, "warn", mock.level)
	assert.Equal(t, "pipeline failure", mock.lastMsg)
	assert.Contains(t, mock.lastArgs, KindEncodeDecode)

	assert.NotNil(t, LogReporter(nil))
}

func TestMultiReporter(t *testing.T) {
	var order []string
	first := ReporterFunc(func(Failure) { order = append(order, "first") })
	second := ReporterFunc(func(Failure) { order = append(order, "second") })

	MultiReporter(first, nil, second).Report(Failure{})
	assert.Equal(t, []string{"first", "second"}, order)

	MultiReporter().Report(Failure{})
}

func TestBusReporter(t *testing.T) {
	bus := evbus.New()

	got := make(chan Failure, 1)
	require.NoError(t, bus.Subscribe(FailureTopic, func(f Failure) { got <- f }))

	BusReporter(bus, "").Report(Failure{Kind: KindReassemblyTimeout, MessageID: "m"})

	select {
	case f := <-got:
		assert.Equal(t, KindReassemblyTimeout, f.Kind)
		assert.Equal(t, "m", f.MessageID)
	case <-time.After(time.Second):
		t.Fatal("failure not published")
	}
}

func TestBusReporter_CustomTopic(t *testing.T) {
	bus := evbus.New()
	var kinds []string
	require.NoError(t, bus.Subscribe("custom", func(f Failure) { kinds = append(kinds, f.Kind) }))

	BusReporter(bus, "custom").Report(Failure{Kind: KindExtension})
	BusReporter(bus, "").Report(Failure{Kind: KindEncodeDecode})

	assert.Equal(t, []string{KindExtension}, kinds)
}

func TestStamp(t *testing.T) {
	assert.False(t, stamp(Failure{}).At.IsZero())

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, at, stamp(Failure{At: at}).At)
}
