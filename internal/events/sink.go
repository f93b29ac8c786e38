package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// SinkConfig configures the durable log and the live fan-out.
type SinkConfig struct {
	Path             string
	MaxSize          int64 // rotate to <path>.old past this size; 0 disables rotation
	SubscriberBuffer int
	Echo             bool // also write each line to the logger at debug level
}

// Sink is the append-only event log plus the live broadcast of the same
// facts. Emit never fails: persistence and broadcast problems are logged and
// swallowed so observability cannot destabilise a run.
type Sink struct {
	path    string
	maxSize int64
	echo    bool
	logger  *slog.Logger

	mu  sync.Mutex // serialises appends
	hub *Hub
}

var _ Emitter = (*Sink)(nil)

func NewSink(cfg SinkConfig, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		path:    cfg.Path,
		maxSize: cfg.MaxSize,
		echo:    cfg.Echo,
		logger:  logger,
		hub:     NewHub(cfg.SubscriberBuffer),
	}
}

// Path is the durable log location.
func (s *Sink) Path() string {
	return s.path
}

func (s *Sink) Emit(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Warn("failed to marshal event", "type", evt.Type, "error", err)
		return
	}
	if s.echo {
		s.logger.Debug("event", "type", evt.Type, "run_id", evt.RunID, "event", string(data))
	}

	if s.path != "" {
		s.writeToFile(data)
	}
	s.hub.Publish(evt)
}

func (s *Sink) writeToFile(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		s.logger.Warn("failed to create event log directory", "error", err)
		return
	}

	if s.maxSize > 0 {
		info, err := os.Stat(s.path)
		if err == nil && info.Size() > s.maxSize {
			s.rotate()
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		s.logger.Warn("failed to open event log", "path", s.path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		s.logger.Warn("failed to append event", "path", s.path, "error", err)
	}
}

// rotate keeps a single .old generation. Callers hold s.mu.
func (s *Sink) rotate() {
	oldPath := s.path + ".old"
	_ = os.Remove(oldPath)
	if err := os.Rename(s.path, oldPath); err != nil {
		s.logger.Warn("failed to rotate event log", "path", s.path, "error", err)
	}
}

// Subscribe registers a live observer. Close the subscription when done.
func (s *Sink) Subscribe() *Subscription {
	return s.hub.Subscribe()
}

// ReadRecent returns the last n events of the durable log, oldest first.
// A missing log reads as empty.
func (s *Sink) ReadRecent(n int) ([]Event, error) {
	if n <= 0 || s.path == "" {
		return nil, nil
	}

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines, err := tailLines(f, n)
	if err != nil {
		return nil, err
	}

	out := make([]Event, 0, len(lines))
	for _, line := range lines {
		out = append(out, Decode(line))
	}
	return out, nil
}

// tailLines keeps a ring of the last n non-empty lines.
func tailLines(r io.Reader, n int) ([][]byte, error) {
	ring := make([][]byte, 0, n)
	start := 0

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			if len(ring) < n {
				ring = append(ring, line)
			} else {
				ring[start] = line
				start = (start + 1) % n
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	out := make([][]byte, 0, len(ring))
	out = append(out, ring[start:]...)
	out = append(out, ring[:start]...)
	return out, nil
}
