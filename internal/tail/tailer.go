// Package tail exposes a growing, rotatable log file as an ordered stream
// of lines.
//
// DESIGN: The tailer keeps one open handle and a byte offset. Every wakeup
// it reconciles the handle against the path before reading:
//   - identity changed (os.SameFile fails): the file was rotated; the old
//     handle is drained so its final lines are not lost, then the new file
//     is opened at offset 0
//   - path missing: the file was renamed or deleted with no replacement
//     yet; the old handle is drained and the tailer waits for recreation
//   - size below the offset: the file was truncated in place; reading
//     restarts from 0 on the same handle
//
// Wakeups come from an fsnotify watch on the parent directory, with a poll
// ticker as fallback for filesystems without reliable events. The first
// open seeks to the end so a restart does not replay history; every reopen
// afterwards starts at 0 because the new file is all new content.
//
// Lines are delivered on a bounded channel. A slow consumer blocks the
// reader (no line is ever dropped or reordered); cancellation unblocks
// everything promptly.
package tail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/whotterre/log-watcher/internal/monitoring"
)

const lineBuffer = 256

// Config contains tailer settings.
type Config struct {
	Path          string        // file to tail
	PollInterval  time.Duration // fallback poll cadence
	ReadFromStart bool          // read existing content on the first open
}

// Tailer follows one log file and emits its lines in order.
type Tailer struct {
	cfg     Config
	logger  *monitoring.Logger
	metrics *monitoring.MetricsCollector
	flagger *monitoring.Flagger
	events  *monitoring.EventLog

	lines chan string

	// Reader state, touched only by the Run goroutine.
	file         *os.File
	offset       int64
	pending      []byte // partial last line carried between reads
	firstOpen    bool
	reopenReason string // why the previous handle was closed
	lastData     time.Time
	buf          []byte
}

// New creates a tailer for the given path. Run must be called to start it.
func New(cfg Config, logger *monitoring.Logger, metrics *monitoring.MetricsCollector, flagger *monitoring.Flagger, events *monitoring.EventLog) *Tailer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	cfg.Path = filepath.Clean(cfg.Path)
	return &Tailer{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		flagger:   flagger,
		events:    events,
		lines:     make(chan string, lineBuffer),
		firstOpen: true,
		lastData:  time.Now(),
		buf:       make([]byte, 64*1024),
	}
}

// Lines returns the output stream. It is closed when Run returns.
func (t *Tailer) Lines() <-chan string { return t.lines }

// Run tails the file until ctx is canceled. The file being absent, rotated,
// truncated or transiently unreadable is handled internally and never
// surfaces as an error.
func (t *Tailer) Run(ctx context.Context) error {
	defer close(t.lines)
	defer t.closeFile()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.logger.Warn().Err(err).Msg("fs notifications unavailable, falling back to polling")
		watcher = nil
	} else if err := watcher.Add(filepath.Dir(t.cfg.Path)); err != nil {
		t.logger.Warn().Err(err).Msg("cannot watch log directory, falling back to polling")
		watcher.Close()
		watcher = nil
	}
	if watcher != nil {
		defer watcher.Close()
	}

	// Nil channels on the polling-only path simply never fire.
	var fsEvents chan fsnotify.Event
	var fsErrors chan error
	if watcher != nil {
		fsEvents = watcher.Events
		fsErrors = watcher.Errors
	}

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	t.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-fsEvents:
			if ev.Name != t.cfg.Path {
				continue
			}
			t.poll(ctx)
		case err := <-fsErrors:
			t.logger.Warn().Err(err).Msg("fs watcher error")
		case <-ticker.C:
			t.poll(ctx)
		}
	}
}

// poll reconciles the handle with the path and reads whatever is new.
func (t *Tailer) poll(ctx context.Context) {
	if t.file != nil {
		t.checkFile(ctx)
	}
	if t.file == nil && !t.open() {
		return
	}

	if err := t.readAll(ctx); err != nil {
		t.logger.Warn().Err(err).Str("path", t.cfg.Path).Msg("read failed, reopening")
		t.closeFile()
		t.reopenReason = "recreated"
	}

	t.flagger.FlagTailStalled(t.cfg.Path, time.Since(t.lastData))
}

// checkFile detects rotation and truncation before the next read.
func (t *Tailer) checkFile(ctx context.Context) {
	disk, err := os.Stat(t.cfg.Path)
	if err != nil {
		// Renamed or deleted with no replacement yet. Keep whatever the old
		// handle still holds, then wait for the path to come back.
		t.readAll(ctx)
		t.closeFile()
		t.reopenReason = "recreated"
		t.logger.Info().Str("path", t.cfg.Path).Msg("log file disappeared, waiting for recreation")
		return
	}

	cur, err := t.file.Stat()
	if err != nil {
		t.closeFile()
		t.reopenReason = "recreated"
		return
	}

	if !os.SameFile(cur, disk) {
		// Rotated: drain the final lines of the old file, then switch.
		t.readAll(ctx)
		t.closeFile()
		t.reopenReason = "rotated"
		return
	}

	if disk.Size() < t.offset {
		oldOffset := t.offset
		if _, err := t.file.Seek(0, io.SeekStart); err != nil {
			t.closeFile()
			t.reopenReason = "truncated"
			return
		}
		t.offset = 0
		t.pending = nil
		t.metrics.RecordTruncation()
		t.flagger.FlagTruncation(t.cfg.Path, oldOffset, disk.Size())
		t.events.RecordReopen(monitoring.ReopenEntry{
			Timestamp: time.Now().UTC(),
			Path:      t.cfg.Path,
			Reason:    "truncated",
			Offset:    0,
		})
	}
}

// open attempts to open the path once; the surrounding poll loop provides
// the retry cadence. Returns false while the file is still absent.
func (t *Tailer) open() bool {
	f, err := os.Open(t.cfg.Path)
	if err != nil {
		t.logger.Debug().Err(err).Str("path", t.cfg.Path).Msg("log file not readable yet")
		return false
	}

	t.file = f
	t.offset = 0
	t.pending = nil

	if t.firstOpen {
		t.firstOpen = false
		if !t.cfg.ReadFromStart {
			if size, err := f.Seek(0, io.SeekEnd); err == nil {
				t.offset = size
			}
		}
		t.logger.Info().
			Str("path", t.cfg.Path).
			Int64("offset", t.offset).
			Msg("tailing started")
	} else {
		reason := t.reopenReason
		if reason == "" {
			reason = "recreated"
		}
		t.metrics.RecordReopen()
		t.events.RecordReopen(monitoring.ReopenEntry{
			Timestamp: time.Now().UTC(),
			Path:      t.cfg.Path,
			Reason:    reason,
			Offset:    0,
		})
		t.logger.Info().
			Str("path", t.cfg.Path).
			Str("reason", reason).
			Msg("log file reopened")
	}
	t.reopenReason = ""
	t.lastData = time.Now()
	return true
}

// readAll consumes everything from the current offset to EOF.
func (t *Tailer) readAll(ctx context.Context) error {
	if t.file == nil {
		return nil
	}
	for {
		n, err := t.file.Read(t.buf)
		if n > 0 {
			t.offset += int64(n)
			t.lastData = time.Now()
			if !t.emit(ctx, t.buf[:n]) {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// emit splits data into lines and sends the complete ones downstream. The
// trailing partial line is carried until its newline arrives. Returns false
// when ctx was canceled mid-send.
func (t *Tailer) emit(ctx context.Context, data []byte) bool {
	t.pending = append(t.pending, data...)

	rest := t.pending
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(rest[:i]), "\r")
		rest = rest[i+1:]

		if strings.TrimSpace(line) == "" {
			continue
		}
		t.metrics.RecordLine()
		select {
		case t.lines <- line:
		case <-ctx.Done():
			t.pending = nil
			return false
		}
	}

	// Copy the leftover so the consumed prefix can be collected.
	if len(rest) == 0 {
		t.pending = nil
	} else {
		t.pending = append([]byte(nil), rest...)
	}
	return true
}

func (t *Tailer) closeFile() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
	}
	t.pending = nil
	t.offset = 0
}
