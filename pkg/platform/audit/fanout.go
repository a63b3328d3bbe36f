package audit

import (
	"context"
	"errors"
)

// Appender is a write-only audit destination such as a message broker sink.
type Appender interface {
	Append(ctx context.Context, event Event) error
}

// FanOut is a Store that reads from a primary store and copies every
// appended event to additional sinks.
type FanOut struct {
	primary Store
	sinks   []Appender
}

func NewFanOut(primary Store, sinks ...Appender) *FanOut {
	return &FanOut{primary: primary, sinks: sinks}
}

func (f *FanOut) Append(ctx context.Context, event Event) error {
	errs := []error{f.primary.Append(ctx, event)}
	for _, sink := range f.sinks {
		errs = append(errs, sink.Append(ctx, event))
	}
	return errors.Join(errs...)
}

func (f *FanOut) ListBySubject(ctx context.Context, subject string) ([]Event, error) {
	return f.primary.ListBySubject(ctx, subject)
}
