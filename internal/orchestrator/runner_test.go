package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/aristath/checkout-runner/internal/events"
	"github.com/aristath/checkout-runner/internal/proxy"
	"github.com/aristath/checkout-runner/internal/task"
)

// mockClient implements shop.Client. AddToCart behaviour is selected by mode.
type mockClient struct {
	mode string // "ok", "panic", "block" or "flaky"

	mu        sync.Mutex
	cartCalls int
	proxies   []string
}

func (m *mockClient) AddToCart(ctx context.Context, productIDs []uint64) error {
	m.mu.Lock()
	m.cartCalls++
	calls := m.cartCalls
	m.mu.Unlock()

	switch m.mode {
	case "flaky":
		if calls == 1 {
			return errors.New("cart busy")
		}
	case "panic":
		panic("cart exploded")
	case "block":
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (m *mockClient) SessionUID(ctx context.Context) (string, error) { return "uid", nil }

func (m *mockClient) GoToCheckout(ctx context.Context, sessionUID string) error { return nil }

func (m *mockClient) CartTotalPrice(ctx context.Context) (uint64, error) { return 10, nil }

func (m *mockClient) CreateOrder(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"order":"ok"}`), nil
}

func (m *mockClient) SetProxy(u *url.URL) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proxies = append(m.proxies, u.Host)
}

func newMockTask(t *testing.T, name, mode string, bus events.Publisher) *task.Task {
	t.Helper()
	tk, _ := newMockTaskWithClient(t, name, mode, bus)
	return tk
}

func newMockTaskWithClient(t *testing.T, name, mode string, bus events.Publisher) (*task.Task, *mockClient) {
	t.Helper()
	client := &mockClient{mode: mode}
	logger, _ := test.NewNullLogger()
	opts := []task.Option{
		task.WithClient(client),
		task.WithLogger(logrus.NewEntry(logger)),
	}
	if bus != nil {
		opts = append(opts, task.WithEventBus(bus))
	}
	tk, err := task.New(name, "", time.Millisecond, []uint64{1}, 100, opts...)
	if err != nil {
		t.Fatalf("task.New failed: %v", err)
	}
	return tk, client
}

func newTestRunner(onOutcome func(Outcome), bus events.Publisher) (*Runner, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return NewRunner(RunnerConfig{
		Bus:       bus,
		Logger:    logrus.NewEntry(logger),
		OnOutcome: onOutcome,
	}), hook
}

func TestRun_SuccessCrashAndCancelledTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := 0
	runner, _ := newTestRunner(func(o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		seen++
		// A and B are done; only the blocked task is left.
		if seen == 2 {
			cancel()
		}
	}, nil)

	tasks := []*task.Task{
		newMockTask(t, "A", "ok", nil),
		newMockTask(t, "B", "panic", nil),
		newMockTask(t, "C", "block", nil),
	}

	done := make(chan []Outcome, 1)
	go func() { done <- runner.Run(ctx, tasks, nil) }()

	var outcomes []Outcome
	select {
	case outcomes = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not finish")
	}

	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}

	byName := make(map[string]Outcome)
	for _, o := range outcomes {
		byName[o.TaskName] = o
	}

	if byName["A"].Kind != Succeeded {
		t.Errorf("A: expected Succeeded, got %s (%v)", byName["A"].Kind, byName["A"].Err)
	}
	if string(byName["A"].Order) != `{"order":"ok"}` {
		t.Errorf("A: unexpected order %s", byName["A"].Order)
	}

	if byName["B"].Kind != Crashed {
		t.Errorf("B: expected Crashed, got %s", byName["B"].Kind)
	}
	var pe *PanicError
	if !errors.As(byName["B"].Err, &pe) || pe.Value != "cart exploded" {
		t.Errorf("B: expected PanicError, got %v", byName["B"].Err)
	}

	if byName["C"].Kind != Failed {
		t.Errorf("C: expected Failed, got %s", byName["C"].Kind)
	}
	if !errors.Is(byName["C"].Err, context.Canceled) {
		t.Errorf("C: expected context.Canceled, got %v", byName["C"].Err)
	}

	// C can only finish after the hook cancelled it.
	if outcomes[2].TaskName != "C" {
		t.Errorf("expected C to finish last, got order %s,%s,%s",
			outcomes[0].TaskName, outcomes[1].TaskName, outcomes[2].TaskName)
	}
}

func TestRun_EmptyTaskList(t *testing.T) {
	runner, _ := newTestRunner(nil, nil)
	outcomes := runner.Run(context.Background(), nil, nil)
	if len(outcomes) != 0 {
		t.Errorf("expected no outcomes, got %d", len(outcomes))
	}
}

func TestRun_SharedProxyGroup(t *testing.T) {
	group, err := proxy.NewGroup([]string{"10.0.0.1:80", "10.0.0.2:80"})
	if err != nil {
		t.Fatalf("NewGroup failed: %v", err)
	}

	runner, _ := newTestRunner(nil, nil)
	var tasks []*task.Task
	for _, name := range []string{"a", "b", "c", "d"} {
		tasks = append(tasks, newMockTask(t, name, "ok", nil))
	}

	outcomes := runner.Run(context.Background(), tasks, group)
	for _, o := range outcomes {
		if o.Kind != Succeeded {
			t.Errorf("%s: expected Succeeded, got %s", o.TaskName, o.Kind)
		}
	}
	// Nothing failed, so nobody rotated.
	if group.Index() != 0 {
		t.Errorf("expected cursor untouched, got %d", group.Index())
	}
}

func TestRun_CrashDoesNotStopRetryingSibling(t *testing.T) {
	group, err := proxy.NewGroup([]string{"10.0.0.1:80", "10.0.0.2:80"})
	if err != nil {
		t.Fatalf("NewGroup failed: %v", err)
	}

	runner, _ := newTestRunner(nil, nil)
	flaky, client := newMockTaskWithClient(t, "C", "flaky", nil)
	tasks := []*task.Task{
		newMockTask(t, "A", "ok", nil),
		newMockTask(t, "B", "panic", nil),
		flaky,
	}

	done := make(chan []Outcome, 1)
	go func() { done <- runner.Run(context.Background(), tasks, group) }()

	var outcomes []Outcome
	select {
	case outcomes = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not finish")
	}

	byName := make(map[string]Outcome)
	for _, o := range outcomes {
		byName[o.TaskName] = o
	}
	want := map[string]Kind{"A": Succeeded, "B": Crashed, "C": Succeeded}
	for name, kind := range want {
		if byName[name].Kind != kind {
			t.Errorf("%s: expected %s, got %s (%v)", name, kind, byName[name].Kind, byName[name].Err)
		}
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if client.cartCalls != 2 {
		t.Errorf("C: expected 2 cart attempts, got %d", client.cartCalls)
	}
	if len(client.proxies) != 1 || client.proxies[0] != "10.0.0.2:80" {
		t.Errorf("C: expected one rotation to 10.0.0.2:80, got %v", client.proxies)
	}
	if group.Index() != 1 {
		t.Errorf("expected cursor at 1, got %d", group.Index())
	}
}

func TestRun_PublishesProgress(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	runCh := bus.Subscribe(events.TopicRun, 16)
	taskCh := bus.Subscribe(events.TopicTask, 64)

	runner, hook := newTestRunner(nil, bus)
	tasks := []*task.Task{
		newMockTask(t, "ok", "ok", bus),
		newMockTask(t, "boom", "panic", bus),
	}

	runner.Run(context.Background(), tasks, nil)

	var last events.RunProgressEvent
	progressCount := 0
	for len(runCh) > 0 {
		last = (<-runCh).(events.RunProgressEvent)
		progressCount++
	}
	if progressCount != 2 {
		t.Fatalf("expected 2 progress events, got %d", progressCount)
	}
	if last.Total != 2 || last.Succeeded != 1 || last.Failed != 1 || last.Running != 0 {
		t.Errorf("unexpected final progress %+v", last)
	}

	completed, crashed := 0, 0
	for len(taskCh) > 0 {
		switch e := (<-taskCh).(type) {
		case events.TaskCompletedEvent:
			completed++
		case events.TaskFailedEvent:
			if e.Crashed {
				crashed++
			}
		}
	}
	if completed != 1 || crashed != 1 {
		t.Errorf("expected 1 completed and 1 crashed, got %d and %d", completed, crashed)
	}

	var sawCrash bool
	for _, e := range hook.AllEntries() {
		if e.Message == "task crashed" && e.Level == logrus.ErrorLevel {
			sawCrash = true
		}
	}
	if !sawCrash {
		t.Error("expected the crash to be logged")
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	RenderSummary(&buf, []Outcome{
		{TaskName: "alpha", Kind: Succeeded, Order: json.RawMessage(`{"id":1}`), Duration: time.Second},
		{TaskName: "beta", Kind: Failed, Err: errors.New("stopped"), Duration: 2 * time.Second},
	})

	out := buf.String()
	for _, want := range []string{"alpha", "succeeded", `{"id":1}`, "beta", "failed", "stopped"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{Succeeded, "succeeded"},
		{Crashed, "crashed"},
		{Failed, "failed"},
		{Kind(9), "kind(9)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}
