package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/aristath/checkout-runner/internal/config"
	"github.com/aristath/checkout-runner/internal/events"
	"github.com/aristath/checkout-runner/internal/proxy"
)

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	dir := t.TempDir()
	return &config.Settings{
		TasksFile:   filepath.Join(dir, "tasks.csv"),
		ProxiesFile: filepath.Join(dir, "proxies.txt"),
		LogLevel:    "info",
		LogDir:      filepath.Join(dir, "logs"),
	}
}

func TestSetupLogger_MirrorsToFile(t *testing.T) {
	cfg := testSettings(t)
	var console bytes.Buffer

	logger, closeLog, err := setupLogger(cfg, &console)
	require.NoError(t, err)
	logger.Info("hello")
	closeLog()

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, logFileName))
	require.NoError(t, err)
	require.Contains(t, string(data), "hello")
	require.Contains(t, console.String(), "hello")
}

func TestSetupLogger_DashboardSkipsConsole(t *testing.T) {
	cfg := testSettings(t)
	cfg.TUI = true
	var console bytes.Buffer

	logger, closeLog, err := setupLogger(cfg, &console)
	require.NoError(t, err)
	logger.Warn("quiet")
	closeLog()

	require.Empty(t, console.String())
	data, err := os.ReadFile(filepath.Join(cfg.LogDir, logFileName))
	require.NoError(t, err)
	require.Contains(t, string(data), "quiet")
}

func TestSetupLogger_BadLevel(t *testing.T) {
	cfg := testSettings(t)
	cfg.LogLevel = "loud"

	_, _, err := setupLogger(cfg, &bytes.Buffer{})
	require.Error(t, err)
}

func TestInitFiles(t *testing.T) {
	cfg := testSettings(t)
	settingsPath := filepath.Join(filepath.Dir(cfg.TasksFile), "settings.json5")
	var out bytes.Buffer

	require.NoError(t, initFiles(cfg, settingsPath, false, &out))
	require.Equal(t, 3, strings.Count(out.String(), "wrote "))

	records, err := config.ReadTasks(cfg.TasksFile, nil)
	require.NoError(t, err)
	require.Equal(t, []config.TaskRecord{config.DefaultTaskRecord()}, records)

	proxies, err := config.ReadProxies(cfg.ProxiesFile)
	require.NoError(t, err)
	require.Empty(t, proxies)

	// A second run keeps what's there.
	out.Reset()
	require.NoError(t, os.WriteFile(cfg.ProxiesFile, []byte("1.2.3.4:80\n"), 0644))
	require.NoError(t, initFiles(cfg, settingsPath, false, &out))
	require.Equal(t, 3, strings.Count(out.String(), "kept "))

	proxies, err = config.ReadProxies(cfg.ProxiesFile)
	require.NoError(t, err)
	require.Len(t, proxies, 1)
}

func TestLoadProxies(t *testing.T) {
	log := logrus.NewEntry(logrus.New())
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	rotator, err := loadProxies(empty, log)
	require.NoError(t, err)
	require.Nil(t, rotator)

	good := filepath.Join(dir, "good.txt")
	require.NoError(t, os.WriteFile(good, []byte("1.2.3.4:80\n5.6.7.8:81:u:p\n"), 0644))
	rotator, err = loadProxies(good, log)
	require.NoError(t, err)
	require.NotNil(t, rotator)

	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("1.2.3.4:80\nnot-a-proxy\n"), 0644))
	_, err = loadProxies(bad, log)
	require.True(t, errors.Is(err, proxy.ErrProxyFormat), "expected ErrProxyFormat, got %v", err)

	_, err = loadProxies(filepath.Join(dir, "missing.txt"), log)
	require.Error(t, err)
}

func TestLogDropped(t *testing.T) {
	logger, hook := test.NewNullLogger()
	log := logrus.NewEntry(logger)

	bus := events.NewEventBus()
	_ = bus.Subscribe(events.TopicTask, 1)
	_ = bus.Subscribe(events.TopicRun, 8)
	for i := 1; i <= 3; i++ {
		events.Emit(bus, events.PhaseAttemptEvent{Name: "a", Phase: "cart_fill", Attempt: i})
	}
	events.Emit(bus, events.RunProgressEvent{Total: 1, Running: 1})
	bus.Close()

	logDropped(bus, log)

	entries := hook.AllEntries()
	require.Len(t, entries, 1)
	require.Equal(t, logrus.WarnLevel, entries[0].Level)
	require.Equal(t, events.TopicTask, entries[0].Data["topic"])
	require.Equal(t, 2, entries[0].Data["dropped"])
}

func TestLogDropped_NothingMissed(t *testing.T) {
	logger, hook := test.NewNullLogger()
	bus := events.NewEventBus()
	_ = bus.Subscribe(events.TopicTask, 8)
	events.Emit(bus, events.PhaseAttemptEvent{Name: "a", Phase: "cart_fill", Attempt: 1})
	bus.Close()

	logDropped(bus, logrus.NewEntry(logger))
	require.Empty(t, hook.AllEntries())
}

func TestRootCmd_MissingTasksWritesTemplate(t *testing.T) {
	cfg := testSettings(t)
	require.NoError(t, os.WriteFile(cfg.ProxiesFile, nil, 0644))

	t.Setenv(config.EnvTasksFile, cfg.TasksFile)
	t.Setenv(config.EnvProxiesFile, cfg.ProxiesFile)
	t.Setenv(config.EnvJournalPath, "")

	dir := filepath.Dir(cfg.TasksFile)
	settings := `{log_dir: "` + cfg.LogDir + `"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json5"), []byte(settings), 0644))

	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"--config", filepath.Join(dir, "settings.json5"),
		"--env", filepath.Join(dir, ".env"),
	})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.True(t, errors.Is(err, config.ErrFillTasks), "expected ErrFillTasks, got %v", err)

	_, statErr := os.Stat(cfg.TasksFile)
	require.NoError(t, statErr)
}
