package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/checkout-runner/internal/events"
	"github.com/aristath/checkout-runner/internal/proxy"
	"github.com/aristath/checkout-runner/internal/task"
)

// Kind classifies how a task's unit of work ended.
type Kind int

const (
	Succeeded Kind = iota // Order created
	Crashed               // Unit of work panicked
	Failed                // Run returned an error
)

func (k Kind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case Crashed:
		return "crashed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result of one task.
type Outcome struct {
	TaskName string
	Kind     Kind
	Order    json.RawMessage // Set when Kind is Succeeded
	Err      error
	Duration time.Duration
}

// PanicError carries a recovered panic out of a crashed unit of work.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// RunnerConfig configures the runner.
type RunnerConfig struct {
	Bus       events.Publisher // Optional; nil disables events
	Logger    *logrus.Entry    // Optional; defaults to the standard logger
	OnOutcome func(Outcome)    // Optional; called once per finished task, in arrival order
}

// Runner executes tasks concurrently, one goroutine each.
type Runner struct {
	config RunnerConfig
	log    *logrus.Entry

	mu        sync.Mutex
	outcomes  []Outcome
	total     int
	succeeded int
	failed    int
}

// NewRunner creates a new runner.
func NewRunner(cfg RunnerConfig) *Runner {
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Runner{
		config: cfg,
		log:    log.WithField("component", "orchestrator"),
	}
}

// Run starts every task and blocks until all of them have finished.
// rotator may be nil. One task's failure or panic never stops the others.
// Outcomes are returned in the order the tasks finished.
func (r *Runner) Run(ctx context.Context, tasks []*task.Task, rotator proxy.Rotator) []Outcome {
	r.mu.Lock()
	r.outcomes = make([]Outcome, 0, len(tasks))
	r.total = len(tasks)
	r.succeeded, r.failed = 0, 0
	r.mu.Unlock()

	r.log.WithField("tasks", len(tasks)).Info("starting tasks")

	// Plain Group: a failing unit must not cancel its siblings.
	var g errgroup.Group
	for _, t := range tasks {
		g.Go(func() error {
			r.record(r.execute(ctx, t, rotator))
			return nil
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.WithFields(logrus.Fields{
		"succeeded": r.succeeded,
		"failed":    r.failed,
	}).Info("all tasks finished")

	return append([]Outcome(nil), r.outcomes...)
}

// execute runs a single task and classifies how it ended.
func (r *Runner) execute(ctx context.Context, t *task.Task, rotator proxy.Rotator) (out Outcome) {
	start := time.Now()
	out.TaskName = t.Name

	defer func() {
		if rec := recover(); rec != nil {
			out.Kind = Crashed
			out.Order = nil
			out.Err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
		out.Duration = time.Since(start)
	}()

	order, err := t.Run(ctx, rotator)
	if err != nil {
		out.Kind = Failed
		out.Err = err
		return out
	}

	out.Kind = Succeeded
	out.Order = order
	return out
}

// record appends an outcome, reports it and publishes run progress.
func (r *Runner) record(out Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, out)
	if out.Kind == Succeeded {
		r.succeeded++
	} else {
		r.failed++
	}
	progress := events.RunProgressEvent{
		Total:     r.total,
		Succeeded: r.succeeded,
		Failed:    r.failed,
		Running:   r.total - r.succeeded - r.failed,
		Timestamp: time.Now(),
	}
	r.mu.Unlock()

	log := r.log.WithFields(logrus.Fields{
		"task":          out.TaskName,
		"time_taken_ms": out.Duration.Milliseconds(),
	})

	switch out.Kind {
	case Succeeded:
		log.WithField("response", string(out.Order)).Info("order created")
		events.Emit(r.config.Bus, events.TaskCompletedEvent{
			Name:      out.TaskName,
			Order:     string(out.Order),
			Duration:  out.Duration,
			Timestamp: time.Now(),
		})
	case Crashed:
		entry := log.WithError(out.Err)
		if pe, ok := out.Err.(*PanicError); ok {
			entry = entry.WithField("stack", string(pe.Stack))
		}
		entry.Error("task crashed")
		events.Emit(r.config.Bus, events.TaskFailedEvent{
			Name:      out.TaskName,
			Err:       out.Err,
			Crashed:   true,
			Duration:  out.Duration,
			Timestamp: time.Now(),
		})
	default:
		log.WithError(out.Err).Error("task failed")
		events.Emit(r.config.Bus, events.TaskFailedEvent{
			Name:      out.TaskName,
			Err:       out.Err,
			Duration:  out.Duration,
			Timestamp: time.Now(),
		})
	}

	events.Emit(r.config.Bus, progress)

	if r.config.OnOutcome != nil {
		r.config.OnOutcome(out)
	}
}
