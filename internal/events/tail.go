package events

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultTailPoll = 500 * time.Millisecond

// Tailer follows the durable log from another goroutine or process. It
// survives truncation and rotation: when the file shrinks below the read
// offset or is replaced by a different file, the tailer reopens it and reads
// the new file from the start.
type Tailer struct {
	path   string
	poll   time.Duration
	logger *slog.Logger
}

func NewTailer(path string, poll time.Duration, logger *slog.Logger) *Tailer {
	if poll <= 0 {
		poll = defaultTailPoll
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tailer{path: path, poll: poll, logger: logger}
}

// Follow calls fn for every complete line appended after the call (or from the
// beginning when fromStart is set) until ctx ends or fn returns an error.
func (t *Tailer) Follow(ctx context.Context, fromStart bool, fn func(Event) error) error {
	wake, closeWatch := t.watch()
	defer closeWatch()

	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	var (
		f       *os.File
		info    os.FileInfo
		reader  *bufio.Reader
		offset  int64
		partial []byte
	)
	defer func() {
		if f != nil {
			f.Close()
		}
	}()

	seekEnd := !fromStart
	for {
		if f == nil {
			opened, err := os.Open(t.path)
			if err == nil {
				f = opened
				info, _ = f.Stat()
				offset = 0
				if seekEnd {
					offset, _ = f.Seek(0, io.SeekEnd)
				}
				reader = bufio.NewReader(f)
				partial = partial[:0]
			} else if !errors.Is(err, os.ErrNotExist) {
				t.logger.Debug("tail open failed", "path", t.path, "error", err)
			}
			// Anything created after this point is new, read it all.
			seekEnd = false
		}

		if f != nil {
			for {
				chunk, err := reader.ReadBytes('\n')
				offset += int64(len(chunk))
				if len(chunk) > 0 {
					partial = append(partial, chunk...)
				}
				if err != nil {
					break
				}
				line := bytes.TrimSpace(partial)
				partial = partial[:0]
				if len(line) == 0 {
					continue
				}
				if err := fn(Decode(line)); err != nil {
					return err
				}
			}

			if t.replaced(info, offset) {
				f.Close()
				f = nil
				continue
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		case <-ticker.C:
		}
	}
}

// replaced reports truncation below the read offset or a change of file
// identity at the path.
func (t *Tailer) replaced(opened os.FileInfo, offset int64) bool {
	current, err := os.Stat(t.path)
	if err != nil {
		return errors.Is(err, os.ErrNotExist)
	}
	if current.Size() < offset {
		return true
	}
	return opened != nil && !os.SameFile(opened, current)
}

// watch wakes the tailer on changes in the log directory. Polling remains the
// fallback when fsnotify is unavailable.
func (t *Tailer) watch() (<-chan struct{}, func()) {
	wake := make(chan struct{}, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		t.logger.Debug("fsnotify unavailable, polling", "error", err)
		return wake, func() {}
	}
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0755); err == nil {
		err = w.Add(dir)
	}
	if err != nil {
		t.logger.Debug("cannot watch log directory, polling", "dir", dir, "error", err)
		w.Close()
		return wake, func() {}
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case evt, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != filepath.Clean(t.path) {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return wake, func() {
		close(done)
		w.Close()
	}
}
