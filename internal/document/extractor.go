package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var (
	ErrDocumentNotFound = errors.New("source document not found")
	ErrExtraction       = errors.New("document extraction failed")
)

// Extractor yields the ordered sections of the source document.
type Extractor interface {
	Extract(ctx context.Context) ([]Section, error)
}

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- binary path comes from application config
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// FileExtractor reads the document at Path. PDFs are converted to text with
// pdftotext; any other file is read as UTF-8 text.
type FileExtractor struct {
	Path      string
	PDFToText string
	Runner    CommandRunner
}

func NewFileExtractor(path, pdfToText string) *FileExtractor {
	if pdfToText == "" {
		pdfToText = "pdftotext"
	}
	return &FileExtractor{Path: path, PDFToText: pdfToText, Runner: ExecRunner{}}
}

func (e *FileExtractor) Extract(ctx context.Context) ([]Section, error) {
	path := filepath.Clean(e.Path)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
		}
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	var text string
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		out, err := e.Runner.Run(ctx, e.PDFToText, "-layout", "-enc", "UTF-8", path, "-")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
		}
		text = string(out)
	} else {
		data, err := os.ReadFile(path) // #nosec G304 -- path is from application config, not user input
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
		}
		text = string(data)
	}

	sections := ParseSections(text)
	slog.InfoContext(ctx, "document parsed", "path", path, "sections", len(sections))
	for _, s := range sections {
		slog.DebugContext(ctx, "section detected", "title", s.Title, "url", s.SourceURL, "chars", len(s.Body))
	}
	return sections, nil
}

// StaticExtractor serves sections already in memory.
type StaticExtractor []Section

func (s StaticExtractor) Extract(ctx context.Context) ([]Section, error) {
	out := make([]Section, len(s))
	copy(out, s)
	return out, nil
}
