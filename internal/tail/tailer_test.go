package tail_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whotterre/log-watcher/internal/monitoring"
	"github.com/whotterre/log-watcher/internal/tail"
)

// settle gives the tailer comfortably more than one poll interval to open
// the file and position itself before the test mutates it.
const settle = 250 * time.Millisecond

func startTailer(t *testing.T, path string, readFromStart bool) (<-chan string, *monitoring.MetricsCollector) {
	t.Helper()

	logger := monitoring.New(monitoring.LoggerConfig{Level: "disabled"})
	metrics := monitoring.NewMetricsCollector()
	flagger := monitoring.NewFlagger(logger, monitoring.FlagConfig{})
	events, err := monitoring.NewEventLog(monitoring.EventLogConfig{})
	require.NoError(t, err)

	tailer := tail.New(tail.Config{
		Path:          path,
		PollInterval:  20 * time.Millisecond,
		ReadFromStart: readFromStart,
	}, logger, metrics, flagger, events)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tailer.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("tailer did not stop after cancellation")
		}
	})

	return tailer.Lines(), metrics
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(content)
	require.NoError(t, err)
}

func readLine(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-lines:
		require.True(t, ok, "line channel closed early")
		return line
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a line")
		return ""
	}
}

func expectNoLine(t *testing.T, lines <-chan string, wait time.Duration) {
	t.Helper()
	select {
	case line, ok := <-lines:
		if ok {
			t.Fatalf("unexpected line: %q", line)
		}
	case <-time.After(wait):
	}
}

// =============================================================================
// BASIC STREAMING
// =============================================================================

func TestTailer_StartsAtEndAndSkipsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	appendFile(t, path, "history-1\nhistory-2\n")

	lines, _ := startTailer(t, path, false)
	time.Sleep(settle)

	appendFile(t, path, "new-1\nnew-2\n")

	assert.Equal(t, "new-1", readLine(t, lines))
	assert.Equal(t, "new-2", readLine(t, lines))
}

func TestTailer_ReadFromStartDeliversHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	appendFile(t, path, "history-1\nhistory-2\n")

	lines, _ := startTailer(t, path, true)

	assert.Equal(t, "history-1", readLine(t, lines))
	assert.Equal(t, "history-2", readLine(t, lines))
}

func TestTailer_FileAbsentAtStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")

	lines, _ := startTailer(t, path, false)
	time.Sleep(settle)

	// The file appears empty, then grows.
	appendFile(t, path, "")
	time.Sleep(settle)
	appendFile(t, path, "first\n")

	assert.Equal(t, "first", readLine(t, lines))
}

func TestTailer_PartialLineHeldUntilComplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	appendFile(t, path, "")

	lines, _ := startTailer(t, path, false)
	time.Sleep(settle)

	appendFile(t, path, "par")
	expectNoLine(t, lines, 200*time.Millisecond)

	appendFile(t, path, "tial\nnext\n")
	assert.Equal(t, "partial", readLine(t, lines))
	assert.Equal(t, "next", readLine(t, lines))
}

func TestTailer_BlankAndCRLFLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	appendFile(t, path, "")

	lines, _ := startTailer(t, path, false)
	time.Sleep(settle)

	appendFile(t, path, "\n   \nwindows\r\nplain\n")

	assert.Equal(t, "windows", readLine(t, lines))
	assert.Equal(t, "plain", readLine(t, lines))
}

// =============================================================================
// ROTATION AND TRUNCATION
// =============================================================================

func TestTailer_RotationResumesWithoutRedelivery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	appendFile(t, path, "")

	lines, metrics := startTailer(t, path, false)
	time.Sleep(settle)

	appendFile(t, path, "before-1\nbefore-2\n")
	assert.Equal(t, "before-1", readLine(t, lines))
	assert.Equal(t, "before-2", readLine(t, lines))

	// Rotate: move the file aside and start a fresh one.
	require.NoError(t, os.Rename(path, filepath.Join(dir, "access.log.1")))
	appendFile(t, path, "after-1\n")

	assert.Equal(t, "after-1", readLine(t, lines))
	assert.Equal(t, int64(1), metrics.Stats()["reopens"])

	// Nothing from the rotated file comes back.
	appendFile(t, path, "after-2\n")
	assert.Equal(t, "after-2", readLine(t, lines))
}

func TestTailer_RotationDrainsOldFileFirst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	appendFile(t, path, "")

	lines, _ := startTailer(t, path, false)
	time.Sleep(settle)

	appendFile(t, path, "seen\n")
	assert.Equal(t, "seen", readLine(t, lines))

	// Write a final line, rotate, and write to the replacement in quick
	// succession; both lines must arrive, in order.
	appendFile(t, path, "final-old\n")
	require.NoError(t, os.Rename(path, filepath.Join(dir, "access.log.1")))
	appendFile(t, path, "first-new\n")

	assert.Equal(t, "final-old", readLine(t, lines))
	assert.Equal(t, "first-new", readLine(t, lines))
}

func TestTailer_TruncationRestartsFromZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	appendFile(t, path, "")

	lines, metrics := startTailer(t, path, false)
	time.Sleep(settle)

	appendFile(t, path, "one\ntwo\n")
	assert.Equal(t, "one", readLine(t, lines))
	assert.Equal(t, "two", readLine(t, lines))

	require.NoError(t, os.Truncate(path, 0))
	appendFile(t, path, "hi\n")

	assert.Equal(t, "hi", readLine(t, lines))
	assert.Equal(t, int64(1), metrics.Stats()["truncations"])
}

// =============================================================================
// SHUTDOWN
// =============================================================================

func TestTailer_CancellationClosesStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	appendFile(t, path, "")

	logger := monitoring.New(monitoring.LoggerConfig{Level: "disabled"})
	metrics := monitoring.NewMetricsCollector()
	flagger := monitoring.NewFlagger(logger, monitoring.FlagConfig{})
	events, err := monitoring.NewEventLog(monitoring.EventLogConfig{})
	require.NoError(t, err)

	tailer := tail.New(tail.Config{Path: path, PollInterval: 20 * time.Millisecond},
		logger, metrics, flagger, events)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tailer.Run(ctx)
	}()

	time.Sleep(settle)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	_, open := <-tailer.Lines()
	assert.False(t, open, "line channel should be closed after Run returns")
}
