package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rahul/lexigpt/internal/events"
	"github.com/rahul/lexigpt/pkg/config"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

type fakeStore struct {
	mu       sync.Mutex
	docs     []schema.Document
	results  []schema.Document
	addErrs  []error
	searchFn func(opts vectorstores.Options) error
	lastOpts vectorstores.Options
}

func (f *fakeStore) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.addErrs) > 0 {
		err := f.addErrs[0]
		f.addErrs = f.addErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.docs = append(f.docs, docs...)
	ids := make([]string, len(docs))
	return ids, nil
}

func (f *fakeStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	var opts vectorstores.Options
	for _, o := range options {
		o(&opts)
	}
	f.lastOpts = opts
	if f.searchFn != nil {
		if err := f.searchFn(opts); err != nil {
			return nil, err
		}
	}
	if len(f.results) > numDocuments {
		return f.results[:numDocuments], nil
	}
	return f.results, nil
}

func TestRetrieverMapsDocuments(t *testing.T) {
	store := &fakeStore{results: []schema.Document{
		{PageContent: " Section 420 IPC ", Metadata: map[string]any{"title": "IPC"}, Score: 0.9},
		{PageContent: "Cheque bounce", Metadata: map[string]any{"source": "data/pdfs/ni_act.pdf"}, Score: 0.5},
		{PageContent: "x", Metadata: map[string]any{}},
	}}
	r := NewRetriever(store, 0, nil)

	got, err := r.Search(context.Background(), "cheating", 2, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d snippets", len(got))
	}
	if got[0].Title != "IPC" || got[0].Content != "Section 420 IPC" || got[0].Score < 0.89 {
		t.Errorf("snippet 0 = %+v", got[0])
	}
	if got[1].Title != "ni_act.pdf" {
		t.Errorf("snippet 1 title = %q", got[1].Title)
	}
	filters, _ := store.lastOpts.Filters.(map[string]any)
	if filters["session_id"] != "sess-1" {
		t.Errorf("filters = %v", store.lastOpts.Filters)
	}
}

func TestRetrieverKeywordFallback(t *testing.T) {
	r := NewRetriever(nil, 3, nil)
	got, err := r.Search(context.Background(), "what is consideration in a contract", 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 || got[0].Content != "Consideration is essential to form a valid contract." {
		t.Errorf("got %+v", got)
	}

	failing := &fakeStore{searchFn: func(vectorstores.Options) error { return errors.New("chroma down") }}
	r = NewRetriever(failing, 2, nil)
	got, _ = r.Search(context.Background(), "zzz", 0, "")
	if len(got) != 2 {
		t.Errorf("no-match fallback should return top corpus entries, got %d", len(got))
	}

	if got, _ := r.Search(context.Background(), "  ", 0, ""); len(got) != 0 {
		t.Errorf("empty query returned %v", got)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		factor  float64
		attempt int
		want    time.Duration
	}{
		{1.5, 1, time.Second},
		{1.5, 2, 1500 * time.Millisecond},
		{1.5, 3, 2250 * time.Millisecond},
		{2, 4, 8 * time.Second},
		{2, 0, time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(tt.factor, tt.attempt); got != tt.want {
			t.Errorf("Backoff(%v, %d) = %v, want %v", tt.factor, tt.attempt, got, tt.want)
		}
	}
}

func newTestIngester(t *testing.T, dir string, store *fakeStore, mem *events.Memory, opts ...IngestOption) (*Ingester, *[]time.Duration) {
	t.Helper()
	var slept []time.Duration
	cfg := config.IngestConfig{
		CorpusDir:     dir,
		MaxRetries:    3,
		BackoffFactor: 1.5,
		PollInterval:  20 * time.Millisecond,
		ChunkSize:     50,
		ChunkOverlap:  0,
	}
	opts = append([]IngestOption{WithSleep(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})}, opts...)
	return NewIngester(cfg, store, mem, nil, opts...), &slept
}

func writeFile(t *testing.T, path, body string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func TestIngesterObserveAndDecide(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeFile(t, filepath.Join(dir, "old.txt"), "old", now.Add(-time.Hour))
	writeFile(t, filepath.Join(dir, "new_small.md"), "a", now)
	writeFile(t, filepath.Join(dir, "new_big.txt"), "abcdef", now)
	writeFile(t, filepath.Join(dir, "skip.docx"), "x", now)

	mem := events.NewMemory()
	in, _ := newTestIngester(t, dir, &fakeStore{}, mem)
	in.maxFiles = 2

	cands, err := in.Observe()
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 3 {
		t.Fatalf("observed %d files, want 3", len(cands))
	}

	plan := in.Decide(cands)
	if len(plan) != 2 {
		t.Fatalf("planned %d files", len(plan))
	}
	if filepath.Base(plan[0].Path) != "new_big.txt" || filepath.Base(plan[1].Path) != "new_small.md" {
		t.Errorf("order = %s, %s", plan[0].Path, plan[1].Path)
	}
	if len(mem.OfType(events.TypeIngest)) != 1 {
		t.Error("decide should emit one ingest event")
	}
}

func TestIngesterObserveIncludePatterns(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	if err := os.MkdirAll(filepath.Join(dir, "acts", "ipc"), 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "top.txt"), "top", now)
	writeFile(t, filepath.Join(dir, "acts", "ipc", "s420.md"), "cheating", now)
	writeFile(t, filepath.Join(dir, "acts", "notes.docx"), "x", now)

	in, _ := newTestIngester(t, dir, &fakeStore{}, events.NewMemory())
	cands, err := in.Observe()
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 || filepath.Base(cands[0].Path) != "top.txt" {
		t.Fatalf("default patterns should stay at the top level, got %v", cands)
	}

	in.include = []string{"acts/**/*", "**/*.txt"}
	cands, err = in.Observe()
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, c := range cands {
		got[filepath.Base(c.Path)] = true
	}
	if len(cands) != 2 || !got["s420.md"] || !got["top.txt"] {
		t.Errorf("observed %v", cands)
	}

	in.include = []string{"["}
	if _, err := in.Observe(); err == nil {
		t.Error("expected error for bad pattern")
	}
}

func TestIngesterRunOnceStoresChunksAndSkipsIngested(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "contract_act.txt"), "Consideration is essential. An agreement without consideration is void.", time.Now())

	store := &fakeStore{}
	mem := events.NewMemory()
	in, _ := newTestIngester(t, dir, store, mem)

	if err := in.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.docs) == 0 {
		t.Fatal("no chunks stored")
	}
	for i, d := range store.docs {
		if d.Metadata["source"] != "contract_act.txt" || d.Metadata["title"] != "contract_act" || d.Metadata["chunk_id"] != i {
			t.Errorf("chunk %d metadata = %v", i, d.Metadata)
		}
	}

	stored := len(store.docs)
	if err := in.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.docs) != stored {
		t.Error("unchanged file was ingested twice")
	}

	last := mem.OfType(events.TypeIngest)
	var completed bool
	for _, e := range last {
		p := e.Payload.(events.Ingest)
		if p.Action == "process_end" && p.Status == "completed" {
			completed = true
		}
	}
	if !completed {
		t.Error("missing completed process_end event")
	}
}

func TestIngesterRetriesWithBackoff(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "text", time.Now())

	store := &fakeStore{addErrs: []error{errors.New("timeout"), errors.New("timeout")}}
	mem := events.NewMemory()
	in, slept := newTestIngester(t, dir, store, mem)

	if err := in.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.docs) == 0 {
		t.Fatal("third attempt should have stored")
	}
	want := []time.Duration{time.Second, 1500 * time.Millisecond}
	if len(*slept) != len(want) || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Errorf("slept %v, want %v", *slept, want)
	}

	var retries int
	for _, e := range mem.OfType(events.TypeIngest) {
		if e.Payload.(events.Ingest).Action == "store_retry" {
			retries++
		}
	}
	if retries != 2 {
		t.Errorf("store_retry events = %d", retries)
	}
}

func TestIngesterExtractFailureGivesUp(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "scan.pdf"), "not really a pdf", time.Now())

	calls := 0
	extractErr := errors.New("bad pdf")
	mem := events.NewMemory()
	store := &fakeStore{}
	in, slept := newTestIngester(t, dir, store, mem, WithExtractor(func(ctx context.Context, path string) ([]schema.Document, error) {
		calls++
		return nil, extractErr
	}))

	c := Candidate{Path: filepath.Join(dir, "scan.pdf")}
	if err := in.Act(context.Background(), c); !errors.Is(err, extractErr) {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 || len(*slept) != 2 {
		t.Errorf("calls = %d, sleeps = %d", calls, len(*slept))
	}
	if len(store.docs) != 0 {
		t.Error("nothing should be stored")
	}
}

func TestIngesterRunSingleLoopAndStop(t *testing.T) {
	in, _ := newTestIngester(t, t.TempDir(), &fakeStore{}, events.NewMemory())

	done := make(chan error, 1)
	go func() { done <- in.Run(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for !in.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !in.Running() {
		t.Fatal("loop did not start")
	}
	if err := in.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run err = %v", err)
	}

	if !in.Stop() {
		t.Error("Stop should report a running loop")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if in.Stop() {
		t.Error("Stop after exit should report false")
	}
}
