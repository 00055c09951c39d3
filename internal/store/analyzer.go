package store

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/registry"
)

// EnglishAnalyzerName names the analyzer used for passages and queries.
const EnglishAnalyzerName = "tailored_en"

// Analyzer turns text into case-folded, stop-word-free terms.
// It is safe for concurrent use.
type Analyzer struct {
	analyzer analysis.Analyzer
}

var (
	defaultAnalyzer     *Analyzer
	defaultAnalyzerErr  error
	defaultAnalyzerOnce sync.Once
)

// DefaultAnalyzer returns the shared English analyzer.
func DefaultAnalyzer() (*Analyzer, error) {
	defaultAnalyzerOnce.Do(func() {
		defaultAnalyzer, defaultAnalyzerErr = NewAnalyzer()
	})
	return defaultAnalyzer, defaultAnalyzerErr
}

// NewAnalyzer builds a unicode tokenizer + lowercase + English stop word chain.
func NewAnalyzer() (*Analyzer, error) {
	cache := registry.NewCache()
	a, err := cache.DefineAnalyzer(EnglishAnalyzerName, englishAnalyzerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to define analyzer: %w", err)
	}
	return &Analyzer{analyzer: a}, nil
}

// englishAnalyzerConfig is shared by the standalone analyzer and the
// lexical index mapping so queries and passages are analysed alike.
func englishAnalyzerConfig() map[string]interface{} {
	return map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []interface{}{
			lowercase.Name,
			en.StopName,
		},
	}
}

// Terms returns the analysed terms of text in order, duplicates kept.
func (a *Analyzer) Terms(text string) []string {
	if text == "" {
		return nil
	}
	stream := a.analyzer.Analyze([]byte(text))
	terms := make([]string, 0, len(stream))
	for _, tok := range stream {
		if len(tok.Term) == 0 {
			continue
		}
		terms = append(terms, string(tok.Term))
	}
	return terms
}
