package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	terrors "github.com/wwaihoe/TailorED/internal/errors"
)

type fakeRunner struct {
	out   []byte
	err   error
	name  string
	stdin []byte
}

func (f *fakeRunner) Run(_ context.Context, name string, _ []string, stdin []byte) ([]byte, error) {
	f.name = name
	f.stdin = stdin
	return f.out, f.err
}

func TestDetectMediaType(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		explicit string
		want     MediaType
	}{
		{"extension txt", "notes.txt", "", MediaText},
		{"extension upper", "SCAN.PDF", "", MediaPDF},
		{"explicit wins", "notes.txt", "application/pdf", MediaPDF},
		{"explicit with params", "x", "text/plain; charset=utf-8", MediaText},
		{"alias jpg", "x", "image/jpg", MediaJPEG},
		{"alias wav", "x", "audio/x-wav", MediaWAV},
		{"octet stream defers", "talk.mp3", "application/octet-stream", MediaMP3},
		{"unknown", "archive.zip", "", MediaUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMediaType(tt.filename, tt.explicit))
		})
	}
}

func TestExtract_Text(t *testing.T) {
	e := New(Config{})

	text, err := e.Extract(context.Background(), []byte("\ufeffParis is the capital of France."), MediaText)

	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital of France.", text)
}

func TestExtract_InvalidUTF8(t *testing.T) {
	e := New(Config{})

	_, err := e.Extract(context.Background(), []byte{0xff, 0xfe, 0x00}, MediaText)

	require.Error(t, err)
	assert.True(t, terrors.IsKind(err, terrors.KindExtraction))
}

func TestExtract_WhitespaceOnly(t *testing.T) {
	e := New(Config{})

	_, err := e.Extract(context.Background(), []byte(" \n\t "), MediaMarkdown)

	require.Error(t, err)
	assert.Equal(t, terrors.ErrCodeExtractionFailed, terrors.GetCode(err))
}

func TestExtract_Unsupported(t *testing.T) {
	e := New(Config{})

	_, err := e.Extract(context.Background(), []byte("PK"), MediaType("application/zip"))

	require.Error(t, err)
	assert.Equal(t, terrors.ErrCodeUnsupportedMedia, terrors.GetCode(err))
	assert.True(t, terrors.IsKind(err, terrors.KindExtraction))
}

func TestExtract_TooLarge(t *testing.T) {
	e := New(Config{MaxBytes: 4})

	_, err := e.Extract(context.Background(), []byte("hello"), MediaText)

	require.Error(t, err)
	assert.True(t, terrors.IsKind(err, terrors.KindInvalidInput))
}

func TestExtract_PDFJoinsPages(t *testing.T) {
	runner := &fakeRunner{out: []byte("page one\n\f  \fpage two\n\f")}
	e := New(Config{}, WithCommandRunner(runner))
	raw := []byte("%PDF-1.7 ...")

	text, err := e.Extract(context.Background(), raw, MediaPDF)

	require.NoError(t, err)
	assert.Equal(t, "page one\n\npage two", text)
	assert.Equal(t, DefaultPDFCommand, runner.name)
	assert.Equal(t, raw, runner.stdin)
}

func TestExtract_PDFFailures(t *testing.T) {
	t.Run("not a pdf", func(t *testing.T) {
		e := New(Config{}, WithCommandRunner(&fakeRunner{}))
		_, err := e.Extract(context.Background(), []byte("hello"), MediaPDF)
		assert.True(t, terrors.IsKind(err, terrors.KindExtraction))
	})

	t.Run("tool missing", func(t *testing.T) {
		runner := &fakeRunner{err: &exec.Error{Name: "pdftotext", Err: exec.ErrNotFound}}
		e := New(Config{}, WithCommandRunner(runner))
		_, err := e.Extract(context.Background(), []byte("%PDF-1.4"), MediaPDF)
		require.Error(t, err)
		te, ok := terrors.As(err)
		require.True(t, ok)
		assert.Equal(t, "pdftotext", te.Details["command"])
	})

	t.Run("corrupt", func(t *testing.T) {
		runner := &fakeRunner{err: errors.New("Syntax Error: Couldn't find trailer dictionary")}
		e := New(Config{}, WithCommandRunner(runner))
		_, err := e.Extract(context.Background(), []byte("%PDF-1.4"), MediaPDF)
		assert.True(t, terrors.IsKind(err, terrors.KindExtraction))
	})
}

func TestExtract_ImageCaption(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llava", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Images, 1)
		assert.Equal(t, base64.StdEncoding.EncodeToString(raw), req.Images[0])
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "A red bicycle against a wall."})
	}))
	defer srv.Close()

	e := New(Config{VisionHost: srv.URL + "/"})

	text, err := e.Extract(context.Background(), raw, MediaPNG)

	require.NoError(t, err)
	assert.Equal(t, "A red bicycle against a wall.", text)
}

func TestExtract_ImageNotConfigured(t *testing.T) {
	e := New(Config{})

	_, err := e.Extract(context.Background(), []byte{0xff, 0xd8}, MediaJPEG)

	assert.Equal(t, terrors.ErrCodeUnsupportedMedia, terrors.GetCode(err))
}

func TestExtract_AudioTranscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, DefaultWhisperModel, r.FormValue("model"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "audio.wav", hdr.Filename)
		_ = json.NewEncoder(w).Encode(transcriptionResponse{Text: "hello from the lecture"})
	}))
	defer srv.Close()

	e := New(Config{WhisperEndpoint: srv.URL})

	text, err := e.Extract(context.Background(), []byte("RIFF....WAVE"), MediaWAV)

	require.NoError(t, err)
	assert.Equal(t, "hello from the lecture", text)
}

func TestExtract_AudioServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := New(Config{WhisperEndpoint: srv.URL})

	_, err := e.Extract(context.Background(), []byte("ID3"), MediaMP3)

	require.Error(t, err)
	assert.True(t, terrors.IsKind(err, terrors.KindExtraction))
	assert.Contains(t, err.Error(), "503")
}
