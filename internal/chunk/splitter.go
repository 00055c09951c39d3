// Package chunk splits extracted document text into overlapping passages.
//
// The splitter descends through a list of separators (paragraph, line,
// word, character), keeping each piece at or under the configured size and
// merging neighbouring pieces back together with a bounded overlap. Sizes
// are measured in characters (runes), not bytes.
package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Defaults used by the retrieval service.
const (
	DefaultChunkSize    = 8000
	DefaultChunkOverlap = 2000
)

// DefaultSeparators is the descent order: paragraph, line, word, character.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter is a deterministic recursive character splitter.
// A Splitter is immutable and safe for concurrent use.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithSeparators replaces the separator descent order.
// The empty separator, if present, must be last.
func WithSeparators(seps ...string) Option {
	return func(s *Splitter) {
		s.separators = append([]string(nil), seps...)
	}
}

// NewSplitter validates the size/overlap pair and returns a Splitter.
func NewSplitter(chunkSize, chunkOverlap int, opts ...Option) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", chunkOverlap, chunkSize)
	}

	s := &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Split is a convenience wrapper around NewSplitter(...).Split(text).
func Split(text string, chunkSize, chunkOverlap int) ([]string, error) {
	s, err := NewSplitter(chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}
	return s.Split(text), nil
}

// ChunkSize returns the configured maximum passage length.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// ChunkOverlap returns the configured overlap.
func (s *Splitter) ChunkOverlap() int { return s.chunkOverlap }

// Split returns the passages of text in document order.
// Empty or whitespace-only text yields no passages.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	var final []string

	// Pick the first separator that occurs in text; the rest are for
	// pieces that are still too long.
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var good []string
	for _, piece := range splitKeepSeparator(text, separator) {
		if length(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// merge greedily packs pieces into passages of at most chunkSize,
// carrying up to chunkOverlap trailing characters into the next passage.
// Pieces already carry their separators, so they are joined with "".
func (s *Splitter) merge(pieces []string) []string {
	var (
		docs    []string
		current []string
		total   int
	)

	for _, p := range pieces {
		n := length(p)
		if total+n > s.chunkSize && len(current) > 0 {
			if doc := join(current); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.chunkOverlap || (total+n > s.chunkSize && total > 0) {
				total -= length(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}

	if doc := join(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepSeparator splits text on sep, attaching each separator to the
// start of the piece that follows it. Empty pieces are dropped.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, sep+p)
	}
	return out
}

func join(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}
