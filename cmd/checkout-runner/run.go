package main

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/aristath/checkout-runner/internal/config"
	"github.com/aristath/checkout-runner/internal/events"
	"github.com/aristath/checkout-runner/internal/orchestrator"
	"github.com/aristath/checkout-runner/internal/persistence"
	"github.com/aristath/checkout-runner/internal/proxy"
	"github.com/aristath/checkout-runner/internal/task"
	"github.com/aristath/checkout-runner/internal/tui"
)

// run loads the inputs, races every task and prints the summary to stdout.
func run(ctx context.Context, cfg *config.Settings, stdout, stderr io.Writer) error {
	logger, closeLog, err := setupLogger(cfg, stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	log := logrus.NewEntry(logger)

	rotator, err := loadProxies(cfg.ProxiesFile, log)
	if err != nil {
		return err
	}

	records, err := config.ReadTasks(cfg.TasksFile, log)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no valid tasks in %s", cfg.TasksFile)
	}

	bus := events.NewEventBus()
	defer bus.Close()

	tasks := make([]*task.Task, 0, len(records))
	for _, rec := range records {
		t, err := task.FromRecord(rec, task.WithEventBus(bus), task.WithLogger(log))
		if err != nil {
			return err
		}
		log.WithField("task", t.String()).Info("loaded task")
		tasks = append(tasks, t)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// Subscribers must exist before the first task publishes.
	var recorderDone chan struct{}
	if cfg.JournalPath != "" {
		store, err := persistence.NewSQLiteStore(ctx, cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer store.Close()

		runID, err := store.StartRun(ctx, len(tasks))
		if err != nil {
			return err
		}
		log.WithField("run_id", runID).Info("journaling run")

		ch := bus.Subscribe(events.TopicTask, 4096)
		recorderDone = make(chan struct{})
		go func() {
			defer close(recorderDone)
			// Keep writing after a signal so the tail of the run is recorded.
			persistence.NewRecorder(store, runID, log).Consume(context.WithoutCancel(ctx), ch)
		}()
	}

	var tuiDone chan error
	var program *tea.Program
	if cfg.TUI {
		program = tea.NewProgram(tui.New(bus, len(tasks)), tea.WithAltScreen())
		tuiDone = make(chan error, 1)
		go func() {
			_, err := program.Run()
			// Leaving the dashboard stops the run.
			cancelRun()
			tuiDone <- err
		}()
	}

	runner := orchestrator.NewRunner(orchestrator.RunnerConfig{Bus: bus, Logger: log})
	outcomes := runner.Run(runCtx, tasks, rotator)

	bus.Close()
	logDropped(bus, log)
	if recorderDone != nil {
		<-recorderDone
	}
	if program != nil {
		if ctx.Err() != nil {
			program.Quit()
		}
		if err := <-tuiDone; err != nil {
			log.WithError(err).Error("dashboard exited with error")
		}
	}

	orchestrator.RenderSummary(stdout, outcomes)
	return nil
}

// logDropped warns about events a slow subscriber missed. A gap on the task
// topic means the journal and the dashboard are incomplete for this run.
func logDropped(bus *events.EventBus, log *logrus.Entry) {
	for _, topic := range []string{events.TopicTask, events.TopicRun} {
		if n := bus.Dropped(topic); n > 0 {
			log.WithFields(logrus.Fields{
				"topic":   topic,
				"dropped": n,
			}).Warn("subscribers missed events")
		}
	}
}

// loadProxies returns nil when the proxies file is empty, which disables
// rotation. A missing file or a malformed entry is an error.
func loadProxies(path string, log *logrus.Entry) (proxy.Rotator, error) {
	raw, err := config.ReadProxies(path)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		log.Warn("no proxies configured, rotation disabled")
		return nil, nil
	}

	group, err := proxy.NewGroup(raw)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	log.WithField("proxies", group.Len()).Info("loaded proxies")
	return group, nil
}
