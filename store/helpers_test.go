package store

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func noEnv(string) string { return "" }

func noSleep(context.Context, time.Duration) error { return nil }

func testOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	return Options{
		Path:    filepath.Join(dir, "test.db"),
		WorkDir: dir,
		TempDir: dir,
		Getenv:  noEnv,
		Logger:  quietLogger(),
		Connect: Backoff{Attempts: 3, Base: time.Millisecond, Sleep: noSleep},
		Query:   Backoff{Attempts: 3, Base: time.Millisecond},
	}
}

func setupTestManager(t *testing.T) (*Manager, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts := testOptions(t)
	opts.Now = clock.Now
	m := NewManager(opts)
	if _, err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, clock
}
