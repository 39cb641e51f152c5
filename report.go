package cometd

import (
	"fmt"
	"time"

	evbus "github.com/asaskevich/EventBus"
)

// Failure kinds reported by this module.
const (
	KindExtension         = "extension"
	KindMalformedChunk    = "malformed_chunk"
	KindReassemblyTimeout = "reassembly_timeout"
	KindEncodeDecode      = "encode_decode"
)

// FailureTopic is the default EventBus topic used by BusReporter.
const FailureTopic = "cometd:failure"

// Failure describes a delivery problem contained inside the pipeline.
// Failures never travel through the send/receive path; they reach the
// application only through a Reporter.
type Failure struct {
	Kind      string
	Extension string
	Channel   string
	MessageID string
	Err       error
	At        time.Time
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: extension=%s channel=%s id=%s: %v", f.Kind, f.Extension, f.Channel, f.MessageID, f.Err)
}

// Unwrap returns the underlying error so errors.Is works on a Failure.
func (f Failure) Unwrap() error {
	return f.Err
}

// Reporter is the observability sink for contained failures.
// Implementations must not block.
type Reporter interface {
	Report(f Failure)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Failure)

// Report implements Reporter.
func (fn ReporterFunc) Report(f Failure) {
	fn(f)
}

type logReporter struct {
	logger Logger
}

// LogReporter returns a Reporter writing each failure as a warning.
func LogReporter(logger Logger) Reporter {
	if logger == nil {
		logger = defaultLogger()
	}
	return &logReporter{logger: logger}
}

func (r *logReporter) Report(f Failure) {
	r.logger.Warn("pipeline failure",
		"kind", f.Kind,
		"extension", f.Extension,
		"channel", f.Channel,
		"id", f.MessageID,
		"error", f.Err)
}

type multiReporter []Reporter

// MultiReporter fans a failure out to every non-nil reporter in order.
func MultiReporter(reporters ...Reporter) Reporter {
	rs := make(multiReporter, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			rs = append(rs, r)
		}
	}
	return rs
}

func (rs multiReporter) Report(f Failure) {
	for _, r := range rs {
		r.Report(f)
	}
}

type busReporter struct {
	bus   evbus.Bus
	topic string
}

// BusReporter publishes each failure on the given EventBus topic.
// Subscribers receive a single Failure argument. An empty topic uses FailureTopic.
func BusReporter(bus evbus.Bus, topic string) Reporter {
	if topic == "" {
		topic = FailureTopic
	}
	return &busReporter{bus: bus, topic: topic}
}

func (r *busReporter) Report(f Failure) {
	r.bus.Publish(r.topic, f)
}

// stamp fills in the failure time when missing.
func stamp(f Failure) Failure {
	if f.At.IsZero() {
		f.At = time.Now().UTC()
	}
	return f
}
