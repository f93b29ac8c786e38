package docgen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func sampleContent() []any {
	return []any{
		map[string]any{"h1": "Notice under Section 138"},
		map[string]any{"p": "The cheque dated 01/02/2024 was dishonoured."},
		map[string]any{"bullet": []any{"Drawer: A. Kumar", "Amount: 50000"}},
		map[string]any{"table": []any{
			[]any{"Party", "Role"},
			[]any{"A. Kumar", "Drawer"},
		}},
	}
}

func TestUniqueFilename(t *testing.T) {
	name := UniqueFilename("pdf")
	if !regexp.MustCompile(`^[0-9a-f]{12}\.pdf$`).MatchString(name) {
		t.Errorf("UniqueFilename = %q", name)
	}
	if UniqueFilename(".xlsx") == UniqueFilename(".xlsx") {
		t.Error("expected distinct names")
	}
}

func TestParseContent(t *testing.T) {
	blocks, err := ParseContent(append(sampleContent(),
		map[string]any{"ul": []any{"x"}},
		map[string]any{"image": "no-such-seal.png"},
		"bare paragraph",
	))
	if err != nil {
		t.Fatal(err)
	}

	want := []BlockKind{Heading1, Paragraph, Bullets, Table, Bullets, Paragraph}
	if len(blocks) != len(want) {
		t.Fatalf("got %d blocks, want %d", len(blocks), len(want))
	}
	for i, k := range want {
		if blocks[i].Kind != k {
			t.Errorf("block %d kind = %s, want %s", i, blocks[i].Kind, k)
		}
	}
	if blocks[3].Rows[1][0] != "A. Kumar" {
		t.Errorf("table rows = %v", blocks[3].Rows)
	}

	if _, err := ParseContent([]any{42}); err == nil {
		t.Error("expected error for non-object block")
	}
	if _, err := ParseContent([]any{map[string]any{"table": "nope"}}); err == nil {
		t.Error("expected error for malformed table")
	}
}

func TestFieldsTable(t *testing.T) {
	content := FieldsTable(map[string]any{"name": "Asha", "amount": 5000.0})
	blocks, err := ParseContent(content)
	if err != nil {
		t.Fatal(err)
	}
	rows := blocks[0].Rows
	if len(rows) != 3 || rows[1][0] != "amount" || rows[1][1] != "5000" || rows[2][0] != "name" {
		t.Errorf("rows = %v", rows)
	}
}

func TestRenderPDF(t *testing.T) {
	dir := t.TempDir()
	s := NewService(dir)

	path, err := s.Render(context.Background(), Request{Type: "PDF", Title: "Legal Notice", Content: sampleContent()})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("path %s not in output dir", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Error("output is not a PDF")
	}
	if got := s.DownloadURL(path); got != "/api/docgen/download/"+filepath.Base(path) {
		t.Errorf("DownloadURL = %s", got)
	}
}

func TestRenderXLSX(t *testing.T) {
	s := NewService(t.TempDir())

	path, err := s.Render(context.Background(), Request{Type: "xlsx", Title: "Case Summary", Content: sampleContent()})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	title, err := f.GetCellValue(xlsxSheet, "A1")
	if err != nil || title != "Case Summary" {
		t.Errorf("A1 = %q, %v", title, err)
	}
}

func TestRenderUnsupported(t *testing.T) {
	s := NewService(t.TempDir())
	for _, typ := range []string{"docx", "pptx", "odt", ""} {
		if _, err := s.Render(context.Background(), Request{Type: typ}); !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("%q: err = %v", typ, err)
		}
	}
}

func TestRenderRemote(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"file_path": "generated/abc123def456.docx"})
	}))
	defer srv.Close()

	s := NewService(t.TempDir(), WithRemote(NewRemote(srv.URL, time.Second)), WithDownloadBase("http://x/dl/"))
	path, err := s.Render(context.Background(), Request{Type: "DOCX", Title: "Affidavit", Content: sampleContent()})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if path != "generated/abc123def456.docx" {
		t.Errorf("path = %s", path)
	}
	if got.Type != "docx" || got.Title != "Affidavit" || len(got.Content) != 4 {
		t.Errorf("remote got %+v", got)
	}
	if url := s.DownloadURL(path); url != "http://x/dl/abc123def456.docx" {
		t.Errorf("DownloadURL = %s", url)
	}
}

func TestRemoteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewRemote(srv.URL, time.Second).Render(context.Background(), Request{Type: "pptx"}); err == nil {
		t.Error("expected error")
	}
}

func TestPath(t *testing.T) {
	dir := t.TempDir()
	s := NewService(dir)
	if err := os.WriteFile(filepath.Join(dir, "abc.pdf"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if p, err := s.Path("abc.pdf"); err != nil || p != filepath.Join(dir, "abc.pdf") {
		t.Errorf("Path = %s, %v", p, err)
	}
	for _, bad := range []string{"../etc/passwd", "a/b.pdf", "..", ""} {
		if _, err := s.Path(bad); !errors.Is(err, ErrInvalidFilename) {
			t.Errorf("%q: err = %v", bad, err)
		}
	}
	if _, err := s.Path("missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: err = %v", err)
	}
}

func sealPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := 0; x < 40; x++ {
		img.Set(x, x%30, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParseContentImages(t *testing.T) {
	data := sealPNG(t)
	path := filepath.Join(t.TempDir(), "seal.png")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)

	blocks, err := ParseContent([]any{
		map[string]any{"image": uri},
		map[string]any{"image": path},
		map[string]any{"image": "data:image/png;base64,!!!not-base64"},
		map[string]any{"image": "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("plain text"))},
		map[string]any{"image": filepath.Join(t.TempDir(), "missing.png")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2 loadable images", len(blocks))
	}
	for i, b := range blocks {
		if b.Kind != Image || b.Format != "png" || b.Width != 40 || b.Height != 30 {
			t.Errorf("block %d = %s %s %dx%d", i, b.Kind, b.Format, b.Width, b.Height)
		}
	}
	if blocks[0].Text != "" || blocks[1].Text != path {
		t.Errorf("image names = %q, %q", blocks[0].Text, blocks[1].Text)
	}
}

func TestRenderWithImage(t *testing.T) {
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(sealPNG(t))
	content := append(sampleContent(), map[string]any{"image": uri}, map[string]any{"p": "Signed and sealed."})
	s := NewService(t.TempDir())

	pdfPath, err := s.Render(context.Background(), Request{Type: "pdf", Title: "Affidavit", Content: content})
	if err != nil {
		t.Fatalf("Render pdf: %v", err)
	}
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("/Subtype /Image")) {
		t.Error("pdf has no embedded image")
	}

	xlsxPath, err := s.Render(context.Background(), Request{Type: "xlsx", Title: "Affidavit", Content: content})
	if err != nil {
		t.Fatalf("Render xlsx: %v", err)
	}
	f, err := excelize.OpenFile(xlsxPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cells, err := f.GetPictureCells(xlsxSheet)
	if err != nil || len(cells) != 1 {
		t.Fatalf("picture cells = %v, %v", cells, err)
	}
	pics, err := f.GetPictures(xlsxSheet, cells[0])
	if err != nil || len(pics) != 1 || pics[0].Extension != ".png" {
		t.Errorf("pictures = %+v, %v", pics, err)
	}
}
