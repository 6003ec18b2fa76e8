package document_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"akar-rag/internal/document"
)

const sample = `AKAR Strategic Consultants
Consolidated website export

HERO PAGE ( https://akar-strategic-consultants.netlify.app )
Strategy that builds.

We help organisations grow.
SERVICES (https://akar-strategic-consultants.netlify.app/services)
Market entry
Feasibility studies
CONTACT ( http://akar.example/contact )
`

func TestParseSections(t *testing.T) {
	sections := document.ParseSections(sample)
	require.Len(t, sections, 3)

	assert.Equal(t, "HERO PAGE", sections[0].Title)
	assert.Equal(t, "https://akar-strategic-consultants.netlify.app", sections[0].SourceURL)
	assert.Equal(t, "Strategy that builds.\nWe help organisations grow.", sections[0].Body)
	assert.Equal(t, 0, sections[0].Order)

	assert.Equal(t, "SERVICES", sections[1].Title)
	assert.Equal(t, "Market entry\nFeasibility studies", sections[1].Body)
	assert.Equal(t, 1, sections[1].Order)

	assert.Equal(t, "CONTACT", sections[2].Title)
	assert.Equal(t, "http://akar.example/contact", sections[2].SourceURL)
	assert.Empty(t, sections[2].Body)
	assert.Equal(t, 2, sections[2].Order)
}

func TestParseSections_NoHeaders(t *testing.T) {
	assert.Empty(t, document.ParseSections("just some text\nwithout headers"))
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		line      string
		wantTitle string
		wantURL   string
		wantOK    bool
	}{
		{"ABOUT US ( https://a.example/about )", "ABOUT US", "https://a.example/about", true},
		{"  Team(HTTPS://a.example/team)  ", "Team", "HTTPS://a.example/team", true},
		{"Call us (555) 123", "", "", false},
		{"Visit https://a.example", "", "", false},
		{"( https://a.example )", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			title, url, ok := document.ParseHeader(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantTitle, title)
			assert.Equal(t, tt.wantURL, url)
		})
	}
}

type mockRunner struct {
	output []byte
	err    error
	name   string
	args   []string
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.name = name
	m.args = args
	return m.output, m.err
}

func TestFileExtractor_Text(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.txt")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	ex := document.NewFileExtractor(path, "")
	sections, err := ex.Extract(context.Background())
	require.NoError(t, err)
	assert.Len(t, sections, 3)
}

func TestFileExtractor_PDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))

	runner := &mockRunner{output: []byte(sample)}
	ex := &document.FileExtractor{Path: path, PDFToText: "/usr/bin/pdftotext", Runner: runner}

	sections, err := ex.Extract(context.Background())
	require.NoError(t, err)
	assert.Len(t, sections, 3)
	assert.Equal(t, "/usr/bin/pdftotext", runner.name)
	assert.Equal(t, []string{"-layout", "-enc", "UTF-8", path, "-"}, runner.args)
}

func TestFileExtractor_PDFRunnerError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))

	ex := &document.FileExtractor{Path: path, PDFToText: "pdftotext", Runner: &mockRunner{err: errors.New("exit status 1")}}
	_, err := ex.Extract(context.Background())
	assert.ErrorIs(t, err, document.ErrExtraction)
}

func TestFileExtractor_Missing(t *testing.T) {
	ex := document.NewFileExtractor(filepath.Join(t.TempDir(), "nope.pdf"), "")
	_, err := ex.Extract(context.Background())
	assert.ErrorIs(t, err, document.ErrDocumentNotFound)
}

func TestStaticExtractor(t *testing.T) {
	src := document.StaticExtractor{{Title: "A", SourceURL: "https://a", Body: "x"}}
	out, err := src.Extract(context.Background())
	require.NoError(t, err)
	out[0].Title = "changed"
	assert.Equal(t, "A", src[0].Title)
}
