package persistence

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/aristath/checkout-runner/internal/events"
)

// Recorder writes task events from the bus into the journal.
type Recorder struct {
	store Store
	runID string
	log   *logrus.Entry
}

// NewRecorder creates a recorder for runID.
func NewRecorder(store Store, runID string, log *logrus.Entry) *Recorder {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Recorder{
		store: store,
		runID: runID,
		log:   log.WithFields(logrus.Fields{"component": "journal", "run_id": runID}),
	}
}

// Consume persists events from ch until it is closed. Write failures are
// logged; they never stop the run.
func (r *Recorder) Consume(ctx context.Context, ch <-chan events.Event) {
	for e := range ch {
		if err := r.record(ctx, e); err != nil {
			r.log.WithError(err).WithField("event", e.EventType()).Warn("failed to journal event")
		}
	}
}

func (r *Recorder) record(ctx context.Context, e events.Event) error {
	switch e := e.(type) {
	case events.PhaseAttemptEvent:
		a := Attempt{
			Task:     e.Name,
			Phase:    e.Phase,
			Attempt:  e.Attempt,
			OK:       e.Err == nil,
			Duration: e.Duration,
			At:       e.Timestamp,
		}
		if e.Err != nil {
			a.Error = e.Err.Error()
		}
		return r.store.SaveAttempt(ctx, r.runID, a)
	case events.TaskCompletedEvent:
		return r.store.SaveOrder(ctx, r.runID, Order{
			Task:     e.Name,
			Response: e.Order,
			At:       e.Timestamp,
		})
	}
	return nil
}
