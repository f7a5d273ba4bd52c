package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnv struct{ value string }

func (f fakeEnv) Getenv(string) string { return f.value }

func TestUnstructuredLogsWithEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		envValue string
		expected bool
	}{
		{"default", "", true},
		{"explicitly true", "true", true},
		{"explicitly false", "false", false},
		{"zero", "0", false},
		{"garbage value", "not-a-bool", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, unstructuredLogsWithEnv(fakeEnv{tt.envValue}))
		})
	}
}

func setSingletonForTest(t *testing.T, l *slog.Logger) {
	t.Helper()
	prev := singleton.Load()
	singleton.Store(l)
	t.Cleanup(func() { singleton.Store(prev) })
}

func TestLogLevels(t *testing.T) { //nolint:paralleltest // mutates singleton
	tests := []struct {
		name     string
		logFn    func()
		contains string
	}{
		{"Debug", func() { Debug("debug msg") }, "debug msg"},
		{"Debugf", func() { Debugf("debug %s", "formatted") }, "debug formatted"},
		{"Debugw", func() { Debugw("debug kv", "key", "val") }, "debug kv"},
		{"Info", func() { Info("info msg") }, "info msg"},
		{"Infof", func() { Infof("info %s", "formatted") }, "info formatted"},
		{"Infow", func() { Infow("info kv", "key", "val") }, "info kv"},
		{"Warn", func() { Warn("warn msg") }, "warn msg"},
		{"Warnf", func() { Warnf("warn %s", "formatted") }, "warn formatted"},
		{"Error", func() { Error("error msg") }, "error msg"},
		{"Errorf", func() { Errorf("error %s", "formatted") }, "error formatted"},
	}

	for _, tc := range tests { //nolint:paralleltest // mutates singleton
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			setSingletonForTest(t, newWithOutput(&buf, slog.LevelDebug))

			tc.logFn()

			assert.Contains(t, buf.String(), tc.contains)
		})
	}
}

func TestGet(t *testing.T) { //nolint:paralleltest // mutates singleton
	var buf bytes.Buffer
	setSingletonForTest(t, newWithOutput(&buf, slog.LevelInfo))

	got := Get()
	require.NotNil(t, got)

	got.Info("get test")
	assert.Contains(t, buf.String(), "get test")
}

func TestInitializeWithEnv(t *testing.T) { //nolint:paralleltest // mutates singleton
	tests := []struct {
		name            string
		unstructuredEnv string
	}{
		{"default (unstructured)", ""},
		{"explicit unstructured", "true"},
		{"structured JSON", "false"},
	}

	for _, tc := range tests { //nolint:paralleltest // mutates singleton
		t.Run(tc.name, func(t *testing.T) {
			prev := singleton.Load()
			t.Cleanup(func() { singleton.Store(prev) })

			InitializeWithEnv(fakeEnv{tc.unstructuredEnv})

			got := singleton.Load()
			require.NotNil(t, got)
		})
	}
}

func TestWithAndFromContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := newWithOutput(&buf, slog.LevelInfo)
	setSingletonForTest(t, base)

	ctx := With(t.Context(), "route_id", "r1")
	FromContext(ctx).Info("enriched")

	assert.Contains(t, buf.String(), "enriched")
	assert.Contains(t, buf.String(), "route_id=r1")
}
