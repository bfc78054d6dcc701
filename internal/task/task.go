package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aristath/checkout-runner/internal/config"
	"github.com/aristath/checkout-runner/internal/events"
	"github.com/aristath/checkout-runner/internal/proxy"
	"github.com/aristath/checkout-runner/internal/shop"
)

var tracer = otel.Tracer("checkout-runner/task")

// Task is one purchase attempt. It owns its shop client exclusively and is
// run once.
type Task struct {
	Name                string
	RetryDelay          time.Duration // Constant wait between a failed attempt and the next one
	ProductIDs          []uint64
	CartTotalPriceLimit uint64 // Inclusive

	client shop.Client
	bus    events.Publisher
	log    *logrus.Entry
	timer  backoff.Timer // nil uses a real timer
}

// Option customizes a Task.
type Option func(*Task)

// WithClient replaces the HTTP client built from the cookie string.
func WithClient(c shop.Client) Option {
	return func(t *Task) { t.client = c }
}

// WithEventBus publishes lifecycle and phase-attempt events to p.
func WithEventBus(p events.Publisher) Option {
	return func(t *Task) { t.bus = p }
}

// WithLogger sets the base logger; the task adds its own fields.
func WithLogger(l *logrus.Entry) Option {
	return func(t *Task) { t.log = l }
}

// WithTimer sets the timer used for the retry delay.
func WithTimer(tm backoff.Timer) Option {
	return func(t *Task) { t.timer = tm }
}

// New builds a ready-to-run task whose HTTP session carries cookies.
func New(name, cookies string, retryDelay time.Duration, productIDs []uint64, cartTotalPriceLimit uint64, opts ...Option) (*Task, error) {
	t := &Task{
		Name:                name,
		RetryDelay:          retryDelay,
		ProductIDs:          append([]uint64(nil), productIDs...),
		CartTotalPriceLimit: cartTotalPriceLimit,
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.log == nil {
		t.log = logrus.NewEntry(logrus.StandardLogger())
	}
	t.log = t.log.WithField("task", name)

	if t.client == nil {
		c, err := shop.NewHTTPClient(shop.ClientOptions{Cookies: cookies})
		if err != nil {
			return nil, fmt.Errorf("creating client for task %q: %w", name, err)
		}
		t.client = c
	}

	return t, nil
}

// FromRecord builds a task from a loaded tasks file record.
func FromRecord(rec config.TaskRecord, opts ...Option) (*Task, error) {
	return New(rec.Name, rec.Cookies, rec.RetryDelay, rec.ProductIDs, rec.CartTotalPriceLimit, opts...)
}

func (t *Task) String() string {
	return fmt.Sprintf("name=%s; product_ids=%v; cart_limit=%d", t.Name, t.ProductIDs, t.CartTotalPriceLimit)
}

// Run drives the task through every phase and returns the order response.
// Failed phases are retried until they succeed; rotator may be nil, in which
// case the proxy is never switched. The only error returned is the context's.
func (t *Task) Run(ctx context.Context, rotator proxy.Rotator) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "task:Run", trace.WithAttributes(attribute.String("task", t.Name)))
	defer span.End()
	start := time.Now()

	events.Emit(t.bus, events.TaskStartedEvent{
		Name:       t.Name,
		ProductIDs: t.ProductIDs,
		PriceLimit: t.CartTotalPriceLimit,
		Timestamp:  time.Now(),
	})

	err := t.retry(ctx, PhaseCartFill, rotator, func(ctx context.Context) (string, error) {
		return "", t.client.AddToCart(ctx, t.ProductIDs)
	})
	if err != nil {
		return nil, err
	}

	var sessionUID string
	err = t.retry(ctx, PhaseSessionAcquire, rotator, func(ctx context.Context) (string, error) {
		uid, err := t.client.SessionUID(ctx)
		if err != nil {
			return "", err
		}
		sessionUID = uid
		return "session_uid=" + uid, nil
	})
	if err != nil {
		return nil, err
	}

	err = t.retry(ctx, PhaseCheckoutEntry, rotator, func(ctx context.Context) (string, error) {
		return "", t.client.GoToCheckout(ctx, sessionUID)
	})
	if err != nil {
		return nil, err
	}

	err = t.retry(ctx, PhasePriceGate, rotator, func(ctx context.Context) (string, error) {
		total, err := t.client.CartTotalPrice(ctx)
		if err != nil {
			return "", err
		}
		detail := fmt.Sprintf("cart_total_price=%d", total)
		if total > t.CartTotalPriceLimit {
			return detail, fmt.Errorf("%w: cart_total_price=%d; limit=%d", ErrPriceAboveLimit, total, t.CartTotalPriceLimit)
		}
		return detail, nil
	})
	if err != nil {
		return nil, err
	}

	var order json.RawMessage
	err = t.retry(ctx, PhaseOrderCreate, rotator, func(ctx context.Context) (string, error) {
		res, err := t.client.CreateOrder(ctx)
		if err != nil {
			return "", err
		}
		order = res
		return "response=" + string(res), nil
	})
	if err != nil {
		return nil, err
	}

	t.log.WithFields(logrus.Fields{
		"phase":         PhaseDone.String(),
		"time_taken_ms": time.Since(start).Milliseconds(),
	}).Info("task finished")
	return order, nil
}

// retry runs attempt until it succeeds or ctx ends. Between attempts the
// proxy is rotated and the task sleeps RetryDelay.
func (t *Task) retry(ctx context.Context, phase Phase, rotator proxy.Rotator, attempt func(context.Context) (string, error)) error {
	log := t.log.WithField("phase", phase.String())
	n := 0

	operation := func() error {
		n++
		actx, span := tracer.Start(ctx, "task:"+phase.String(), trace.WithAttributes(
			attribute.String("task", t.Name),
			attribute.Int("attempt", n),
		))
		defer span.End()

		start := time.Now()
		detail, err := attempt(actx)
		elapsed := time.Since(start)

		events.Emit(t.bus, events.PhaseAttemptEvent{
			Name:      t.Name,
			Phase:     phase.String(),
			Attempt:   n,
			Err:       err,
			Detail:    detail,
			Duration:  elapsed,
			Timestamp: time.Now(),
		})

		entry := log.WithFields(logrus.Fields{
			"attempt":       n,
			"time_taken_ms": elapsed.Milliseconds(),
		})
		if detail != "" {
			entry = entry.WithField("detail", detail)
		}

		if err == nil {
			entry.Info("phase succeeded")
			return nil
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt failed")

		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, ErrPriceAboveLimit) {
			entry.Info("cart total price is more than limit")
		} else {
			entry.WithError(err).Error("phase failed")
		}
		return err
	}

	notify := func(error, time.Duration) {
		t.rotateProxy(rotator, log)
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(t.RetryDelay), ctx)
	if err := backoff.RetryNotifyWithTimer(operation, b, notify, t.timer); err != nil {
		return fmt.Errorf("task %q stopped in %s: %w", t.Name, phase, err)
	}
	return nil
}

// rotateProxy switches to the next proxy. Failures are logged and otherwise
// ignored: the phase retries with whatever proxy the client already has.
func (t *Task) rotateProxy(rotator proxy.Rotator, log *logrus.Entry) {
	if rotator == nil {
		return
	}

	u, err := rotator.Next()
	if err != nil {
		log.WithError(err).Error("failed to rotate proxy")
		return
	}

	t.client.SetProxy(u)
	log.WithField("proxy", u.Host).Debug("rotated proxy")
	events.Emit(t.bus, events.ProxyRotatedEvent{
		Name:      t.Name,
		Proxy:     u.Host,
		Timestamp: time.Now(),
	})
}
