// Package docgen renders generated legal documents (pdf, xlsx locally; docx
// and pptx through a remote renderer) into the download directory.
package docgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedType = errors.New("docgen: unsupported document type")
	ErrInvalidFilename = errors.New("docgen: invalid filename")
	ErrNotFound        = errors.New("docgen: file not found")
)

// Request is the document payload shared by the HTTP route, the
// doc_generate tool and the remote renderer.
type Request struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content []any  `json:"content"`
}

// Renderer produces a document and returns its path on disk.
type Renderer interface {
	Render(ctx context.Context, req Request) (string, error)
}

// Service renders pdf and xlsx locally and forwards other types to the
// configured remote renderer.
type Service struct {
	outputDir    string
	downloadBase string
	remote       Renderer
	logger       *slog.Logger
}

type Option func(*Service)

// WithRemote sets the renderer used for docx and pptx.
func WithRemote(r Renderer) Option {
	return func(s *Service) { s.remote = r }
}

func WithDownloadBase(base string) Option {
	return func(s *Service) { s.downloadBase = strings.TrimRight(base, "/") }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(outputDir string, opts ...Option) *Service {
	s := &Service{
		outputDir:    outputDir,
		downloadBase: "/api/docgen/download",
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) OutputDir() string {
	return s.outputDir
}

func (s *Service) Render(ctx context.Context, req Request) (string, error) {
	docType := strings.ToLower(strings.TrimSpace(req.Type))
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Untitled Document"
	}

	blocks, err := ParseContent(req.Content)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	var path string
	switch docType {
	case "pdf":
		path = filepath.Join(s.outputDir, UniqueFilename("pdf"))
		err = renderPDF(path, title, blocks)
	case "xlsx":
		path = filepath.Join(s.outputDir, UniqueFilename("xlsx"))
		err = renderXLSX(path, title, blocks)
	case "docx", "pptx":
		if s.remote == nil {
			return "", fmt.Errorf("%w: %s (no remote renderer configured)", ErrUnsupportedType, docType)
		}
		req.Type = docType
		path, err = s.remote.Render(ctx, req)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, req.Type)
	}
	if err != nil {
		return "", fmt.Errorf("render %s: %w", docType, err)
	}

	s.logger.Info("document generated", "type", docType, "path", path)
	return path, nil
}

// DownloadURL is the public URL of a generated file.
func (s *Service) DownloadURL(path string) string {
	return s.downloadBase + "/" + filepath.Base(path)
}

var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Path resolves a download filename inside the output directory, rejecting
// anything that is not a plain file name.
func (s *Service) Path(filename string) (string, error) {
	if !filenamePattern.MatchString(filename) || strings.Trim(filename, ".") == "" {
		return "", ErrInvalidFilename
	}
	path := filepath.Join(s.outputDir, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	return path, nil
}

// UniqueFilename returns 12 hex characters from a random UUID plus ext.
func UniqueFilename(ext string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:12] + "." + strings.TrimPrefix(ext, ".")
}
