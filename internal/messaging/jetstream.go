package messaging

import (
	"errors"
	"time"

	"github.com/nats-io/nats.go"
)

// StreamSpec names a stream and the subjects it captures. Messages carrying
// an id already seen within DuplicateWindow are dropped, so a reminder whose
// due date goes A, B, then back to A inside the window is only delivered for
// the first A.
type StreamSpec struct {
	Name            string
	Subjects        []string
	DuplicateWindow time.Duration
}

// EnsureStream creates the stream when it does not exist yet. An existing
// stream is left as configured by its operator.
func EnsureStream(js nats.JetStreamContext, spec StreamSpec) error {
	if _, err := js.StreamInfo(spec.Name); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return err
		}
		if _, addErr := js.AddStream(StreamConfig(spec)); addErr != nil {
			return addErr
		}
	}
	return nil
}

func StreamConfig(spec StreamSpec) *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:       spec.Name,
		Subjects:   spec.Subjects,
		Retention:  nats.LimitsPolicy,
		Storage:    nats.FileStorage,
		Replicas:   1,
		Duplicates: spec.DuplicateWindow,
	}
}
