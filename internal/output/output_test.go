package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wwaihoe/TailorED/internal/registry"
	"github.com/wwaihoe/TailorED/internal/search"
)

func TestWriter_StatusLines(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"success", func(w *Writer) { w.Success("added notes.txt") }, "✓ added notes.txt\n"},
		{"warning", func(w *Writer) { w.Warningf("%d files skipped", 2) }, "! 2 files skipped\n"},
		{"error", func(w *Writer) { w.Errorf("cannot read %s", "x.pdf") }, "✗ cannot read x.pdf\n"},
		{"no icon", func(w *Writer) { w.Status("", "indented") }, "  indented\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a writer over a buffer, which is never colored
			buf := &bytes.Buffer{}
			w := New(buf)

			// When: writing
			tt.write(w)

			// Then: plain text
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_Sources(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	w.Sources([]registry.SourceInfo{
		{SourceID: "3f2a", Filename: "bio.txt", TotalLength: 1200},
		{SourceID: "9c1d", Filename: "chem.pdf", TotalLength: 30},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "SOURCE ID"))
	assert.Contains(t, lines[1], "3f2a")
	assert.Contains(t, lines[1], "1200")
	assert.True(t, strings.HasSuffix(lines[1], "bio.txt"))
	assert.Equal(t, "2 sources, 1230 characters", lines[3])
}

func TestWriter_SourcesEmpty(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Sources(nil)
	assert.Equal(t, "  No sources.\n", buf.String())
}

func TestWriter_SearchResult(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	w.SearchResult(&search.Result{
		Passages:  []string{"Paris is the capital.\nIt is in France."},
		Scores:    []float64{0.5},
		Filenames: []string{"geo.txt", "trivia.txt"},
	})

	out := buf.String()
	assert.Contains(t, out, "[1] score 0.500\n")
	assert.Contains(t, out, "  Paris is the capital.\n  It is in France.\n")
	assert.Contains(t, out, "files: geo.txt, trivia.txt")
}

func TestWriter_SearchResultEmpty(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).SearchResult(&search.Result{})
	assert.Equal(t, "  No results.\n", buf.String())
}

func TestWriter_ColorForced(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, true)
	w.Success("done")
	assert.Contains(t, buf.String(), "done")
}
