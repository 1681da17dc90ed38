package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// logCapture captures slog output for testing
type logCapture struct {
	mu      sync.Mutex
	entries []map[string]any
}

func (c *logCapture) handler() slog.Handler {
	return slog.NewJSONHandler(c, &slog.HandlerOptions{Level: slog.LevelDebug})
}

func (c *logCapture) Write(p []byte) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var entry map[string]any
	if err := json.Unmarshal(p, &entry); err == nil {
		c.entries = append(c.entries, entry)
	}
	return len(p), nil
}

func (c *logCapture) hasEntry(msg, worker string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e["msg"] == msg && e["worker"] == worker {
			return true
		}
	}
	return false
}

func TestStartWorker_TracksCompletion(t *testing.T) {
	capture := &logCapture{}
	oldDefault := slog.Default()
	slog.SetDefault(slog.New(capture.handler()))
	defer slog.SetDefault(oldDefault)

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	var ran atomic.Bool
	startWorker(ctx, &wg, "sync", func(ctx context.Context) {
		ran.Store(true)
		close(started)
		<-ctx.Done()
	})

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("worker function was not called")
	}

	cancel()
	wg.Wait()

	if !ran.Load() {
		t.Error("worker did not run")
	}
	if !capture.hasEntry("worker started", "sync") {
		t.Error("expected 'worker started' log entry with worker=sync")
	}
	if !capture.hasEntry("worker stopped", "sync") {
		t.Error("expected 'worker stopped' log entry with worker=sync")
	}
}

func TestStartWorker_WaitGroupWaitsForAll(t *testing.T) {
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	var stopped atomic.Int32
	for _, name := range []string{"sync", "integrity"} {
		startWorker(ctx, &wg, name, func(ctx context.Context) {
			<-ctx.Done()
			time.Sleep(5 * time.Millisecond)
			stopped.Add(1)
		})
	}

	cancel()
	wg.Wait()

	if got := stopped.Load(); got != 2 {
		t.Errorf("stopped workers = %d, want 2", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestReporter_Verbosity(t *testing.T) {
	var lines []string
	w := writerFunc(func(p []byte) (int, error) {
		lines = append(lines, string(p))
		return len(p), nil
	})

	r := newReporter(w, 1, false)
	r.Report(0, "summary")
	r.Report(1, "record")
	r.Report(2, "detail")
	if len(lines) != 2 {
		t.Errorf("verbosity 1 printed %d lines, want 2: %q", len(lines), lines)
	}

	lines = nil
	newReporter(w, 2, true).Report(0, "summary")
	if len(lines) != 0 {
		t.Errorf("JSON mode printed progress: %q", lines)
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
