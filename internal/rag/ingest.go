package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rahul/lexigpt/internal/events"
	"github.com/rahul/lexigpt/pkg/config"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/tmc/langchaingo/vectorstores"
)

// ErrAlreadyRunning is returned by Run when an ingestion loop is active.
var ErrAlreadyRunning = errors.New("ingest: already running")

var corpusExtensions = map[string]bool{".pdf": true, ".txt": true, ".md": true}

var defaultInclude = []string{"*.pdf", "*.txt", "*.md"}

// Candidate is a corpus file seen by Observe.
type Candidate struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// Extractor loads the raw documents of one file.
type Extractor func(ctx context.Context, path string) ([]schema.Document, error)

// Ingester is an observe, decide, act loop that loads corpus files into the
// vector store. Every stage is reported as an ingest event.
type Ingester struct {
	dir           string
	include       []string
	maxFiles      int
	maxRetries    int
	backoffFactor float64
	poll          time.Duration

	store    vectorstores.VectorStore
	splitter textsplitter.TextSplitter
	extract  Extractor
	sleep    func(ctx context.Context, d time.Duration) error
	events   events.Emitter
	logger   *slog.Logger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	ingested map[string]time.Time
}

type IngestOption func(*Ingester)

func WithExtractor(fn Extractor) IngestOption {
	return func(in *Ingester) { in.extract = fn }
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) IngestOption {
	return func(in *Ingester) { in.sleep = fn }
}

func NewIngester(cfg config.IngestConfig, store vectorstores.VectorStore, emitter events.Emitter, logger *slog.Logger, opts ...IngestOption) *Ingester {
	if emitter == nil {
		emitter = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	in := &Ingester{
		dir:           cfg.CorpusDir,
		include:       cfg.Include,
		maxFiles:      cfg.MaxFiles,
		maxRetries:    max(cfg.MaxRetries, 1),
		backoffFactor: cfg.BackoffFactor,
		poll:          cfg.PollInterval,
		store:         store,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		),
		extract:  loadDocuments,
		sleep:    sleepContext,
		events:   emitter,
		logger:   logger,
		ingested: make(map[string]time.Time),
	}
	if in.poll <= 0 {
		in.poll = 10 * time.Second
	}
	if len(in.include) == 0 {
		in.include = defaultInclude
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Backoff is the delay before retry number attempt+1: factor^(attempt-1)
// seconds.
func Backoff(factor float64, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	secs := math.Pow(factor, float64(attempt-1))
	return time.Duration(secs * float64(time.Second))
}

// Observe lists the corpus files matched by the include patterns. Only pdf,
// txt and md files are considered whatever the patterns say.
func (in *Ingester) Observe() ([]Candidate, error) {
	if _, err := os.Stat(in.dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	fsys := os.DirFS(in.dir)
	seen := make(map[string]bool)
	var out []Candidate
	for _, pattern := range in.include {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("include pattern %q: %w", pattern, err)
		}
		for _, rel := range matches {
			if seen[rel] || !corpusExtensions[strings.ToLower(filepath.Ext(rel))] {
				continue
			}
			seen[rel] = true
			path := filepath.Join(in.dir, filepath.FromSlash(rel))
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			out = append(out, Candidate{Path: path, ModTime: info.ModTime(), Size: info.Size()})
		}
	}
	return out, nil
}

// Decide ranks candidates newest first, then larger, skipping files already
// ingested at their current modification time.
func (in *Ingester) Decide(candidates []Candidate) []Candidate {
	in.mu.Lock()
	var pending []Candidate
	for _, c := range candidates {
		if seen, ok := in.ingested[c.Path]; ok && seen.Equal(c.ModTime) {
			continue
		}
		pending = append(pending, c)
	}
	in.mu.Unlock()

	sort.SliceStable(pending, func(i, j int) bool {
		if !pending[i].ModTime.Equal(pending[j].ModTime) {
			return pending[i].ModTime.After(pending[j].ModTime)
		}
		return pending[i].Size > pending[j].Size
	})
	if in.maxFiles > 0 && len(pending) > in.maxFiles {
		pending = pending[:in.maxFiles]
	}

	in.emit(events.Ingest{
		Action: "decide",
		Status: "planned",
		Reason: "rule-based: newer then larger",
		Count:  len(pending),
	})
	return pending
}

// Act extracts, chunks and stores one file.
func (in *Ingester) Act(ctx context.Context, c Candidate) error {
	target := c.Path
	start := time.Now()
	in.emit(events.Ingest{Action: "process_start", Target: target, Status: "started", Reason: "processing file"})

	var docs []schema.Document
	extractStart := time.Now()
	err := in.retry(ctx, "extract", target, func() error {
		var err error
		docs, err = in.extract(ctx, target)
		return err
	})
	in.emitEnd("extract_end", target, extractStart, len(docs), err)
	if err == nil && !hasText(docs) {
		err = errors.New("no text extracted")
	}
	if err != nil {
		in.emit(events.Ingest{Action: "process_end", Target: target, Status: "failed", Reason: "extract_failed_or_empty"})
		return err
	}

	chunkStart := time.Now()
	chunks, err := textsplitter.SplitDocuments(in.splitter, docs)
	in.emitEnd("chunk_end", target, chunkStart, len(chunks), err)
	if err == nil && len(chunks) == 0 {
		err = errors.New("no chunks produced")
	}
	if err != nil {
		in.emit(events.Ingest{Action: "process_end", Target: target, Status: "failed", Reason: "chunk_failed_or_empty"})
		return err
	}
	tagChunks(chunks, target)

	storeStart := time.Now()
	err = in.retry(ctx, "store", target, func() error {
		_, err := in.store.AddDocuments(ctx, chunks)
		return err
	})
	in.emitEnd("store_end", target, storeStart, len(chunks), err)
	if err != nil {
		in.emit(events.Ingest{Action: "process_end", Target: target, Status: "failed", Reason: "store_failed"})
		return err
	}

	in.mu.Lock()
	in.ingested[target] = c.ModTime
	in.mu.Unlock()

	in.emit(events.Ingest{Action: "process_end", Target: target, Status: "completed", Duration: seconds(start)})
	return nil
}

// retry runs fn up to maxRetries times, sleeping Backoff between attempts.
func (in *Ingester) retry(ctx context.Context, stage, target string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= in.maxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == in.maxRetries {
			break
		}
		delay := Backoff(in.backoffFactor, attempt)
		in.emit(events.Ingest{
			Action:  stage + "_retry",
			Target:  target,
			Attempt: attempt,
			Error:   err.Error(),
			Reason:  fmt.Sprintf("retrying %s (backoff %v)", stage, delay),
		})
		if serr := in.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return err
}

// RunOnce performs one observe, decide, act pass.
func (in *Ingester) RunOnce(ctx context.Context) error {
	candidates, err := in.Observe()
	if err != nil {
		return fmt.Errorf("observe corpus: %w", err)
	}
	if len(candidates) == 0 {
		in.emit(events.Ingest{Action: "idle", Status: "no_files"})
		return nil
	}

	for _, c := range in.Decide(candidates) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := in.Act(ctx, c); err != nil {
			in.logger.Warn("ingest failed", "target", c.Path, "error", err)
		}
	}
	return nil
}

// Run polls the corpus until ctx is done or Stop is called. Only one loop may
// run at a time.
func (in *Ingester) Run(ctx context.Context) error {
	ctx, err := in.acquire(ctx)
	if err != nil {
		return err
	}
	in.loop(ctx)
	return nil
}

// Start launches the polling loop on its own goroutine and returns at once.
// It fails with ErrAlreadyRunning when a loop is active.
func (in *Ingester) Start(ctx context.Context) error {
	ctx, err := in.acquire(ctx)
	if err != nil {
		return err
	}
	go in.loop(ctx)
	return nil
}

func (in *Ingester) acquire(ctx context.Context) (context.Context, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.running {
		return nil, ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	in.running = true
	in.cancel = cancel
	return ctx, nil
}

func (in *Ingester) loop(ctx context.Context) {
	defer func() {
		in.mu.Lock()
		if in.cancel != nil {
			in.cancel()
		}
		in.running = false
		in.cancel = nil
		in.mu.Unlock()
		in.emit(events.Ingest{Action: "agent_stop", Status: "stopped"})
	}()

	in.emit(events.Ingest{Action: "agent_start", Status: "running"})
	in.logger.Info("ingestion agent started", "dir", in.dir, "poll", in.poll)

	ticker := time.NewTicker(in.poll)
	defer ticker.Stop()

	for {
		if err := in.RunOnce(ctx); err != nil && ctx.Err() == nil {
			in.emit(events.Ingest{Action: "loop_error", Error: err.Error()})
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop ends the running loop. It reports whether a loop was running.
func (in *Ingester) Stop() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.cancel == nil {
		return false
	}
	in.cancel()
	return true
}

func (in *Ingester) Running() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.running
}

func (in *Ingester) emit(p events.Ingest) {
	in.events.Emit(events.New("", p))
}

func (in *Ingester) emitEnd(action, target string, start time.Time, count int, err error) {
	p := events.Ingest{Action: action, Target: target, Status: "completed", Duration: seconds(start), Count: count}
	if err != nil {
		p.Status = "failed"
		p.Error = err.Error()
	}
	in.emit(p)
}

func loadDocuments(ctx context.Context, path string) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		return documentloaders.NewPDF(f, info.Size()).Load(ctx)
	}
	return documentloaders.NewText(f).Load(ctx)
}

func tagChunks(chunks []schema.Document, target string) {
	name := filepath.Base(target)
	title := strings.TrimSuffix(name, filepath.Ext(name))
	for i := range chunks {
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = map[string]any{}
		}
		chunks[i].Metadata["source"] = name
		chunks[i].Metadata["title"] = title
		chunks[i].Metadata["chunk_id"] = i
	}
}

func hasText(docs []schema.Document) bool {
	for _, d := range docs {
		if strings.TrimSpace(d.PageContent) != "" {
			return true
		}
	}
	return false
}

func seconds(start time.Time) float64 {
	return math.Round(time.Since(start).Seconds()*100) / 100
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
