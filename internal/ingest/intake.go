// Package ingest is the single entry point for externally produced events:
// HTTP requests and broker bridges decode through it so every accepted
// event is validated, persisted write-behind and broadcast the same way.
package ingest

import (
	"errors"
	"log/slog"

	"github.com/gyaneshwarpardhi/paystream/internal/event"
	"github.com/gyaneshwarpardhi/paystream/internal/metrics"
	"github.com/gyaneshwarpardhi/paystream/internal/stream"
)

// Sink receives accepted events for persistence without blocking.
type Sink interface {
	Submit(ev *event.Event) bool
}

// Intake validates events and hands them to the sink and the channel.
type Intake struct {
	pub  stream.Publisher
	sink Sink
}

// New returns an Intake publishing to pub. sink may be nil.
func New(pub stream.Publisher, sink Sink) *Intake {
	return &Intake{pub: pub, sink: sink}
}

// Accept validates ev and, if it is well formed, persists and publishes it.
// A malformed event is counted and returned as a *event.ValidationError.
func (in *Intake) Accept(ev *event.Event, source string) error {
	if err := ev.Validate(); err != nil {
		in.reject(err, source)
		return err
	}
	if in.sink != nil {
		in.sink.Submit(ev)
	}
	in.pub.Publish(ev)
	metrics.EventsIngested.WithLabelValues(source).Inc()
	return nil
}

// AcceptJSON decodes one wire-format event and accepts it.
func (in *Intake) AcceptJSON(data []byte, source string) (*event.Event, error) {
	ev, err := event.Decode(data)
	if err != nil {
		in.reject(err, source)
		return nil, err
	}
	if err := in.Accept(ev, source); err != nil {
		return nil, err
	}
	return ev, nil
}

func (in *Intake) reject(err error, source string) {
	field := "body"
	var ve *event.ValidationError
	if errors.As(err, &ve) {
		field = ve.Field
	}
	metrics.EventsRejected.WithLabelValues(field).Inc()
	slog.Warn("event rejected", "source", source, "field", field, "err", err)
}
