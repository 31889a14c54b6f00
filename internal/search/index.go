// Package search provides the in-memory retrieval index behind the Q&A
// service. The knowledge base is a Markdown document of government schemes
// and services; it is flattened into standalone facts at load time and
// queried with Jaccard similarity between token sets:
//
//	score = |Q ∩ F| / |Q ∪ F|
//
// The index is immutable after construction and safe for concurrent use. It
// does no logging of its own; callers decide how to report misses.
package search

import (
	"io"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Result is a ranked fact with its similarity score.
type Result struct {
	Snippet string
	Score   float64
}

// Index is the retrieval contract consumed by the Q&A service.
type Index interface {
	TopK(query string, k int) []Result
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	minFactRunes int
	stopwords    map[string]struct{}
	maxFacts     int
}

func defaultConfig() config {
	return config{
		minFactRunes: 20,
		stopwords:    nil,
		maxFacts:     0,
	}
}

// WithMinFactRunes drops facts shorter than n runes; headings and stray
// fragments rarely make useful answers.
func WithMinFactRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minFactRunes = n
		}
	}
}

// WithStopwords removes the given words from both queries and facts before
// scoring.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMaxFacts caps the number of indexed facts.
func WithMaxFacts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxFacts = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type fact struct {
	text   string
	tokens map[string]struct{}
	tLen   int
}

type index struct {
	cfg   config
	facts []fact
}

// NewIndexFromMarkdown loads the knowledge base at path, flattening any
// scheme tables into standalone facts before indexing.
func NewIndexFromMarkdown(path string, opts ...Option) (Index, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	flat, err := FlattenMarkdown(path)
	if err != nil {
		return &index{cfg: cfg}, err
	}
	return build(splitFacts(flat), cfg), nil
}

// NewIndexFromReader builds an Index from already-flattened Markdown.
func NewIndexFromReader(r io.Reader, opts ...Option) (Index, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	all, err := io.ReadAll(r)
	if err != nil {
		return &index{cfg: cfg}, err
	}
	return build(splitFacts(all), cfg), nil
}

// NewIndexFromStrings builds an Index directly from a slice of facts.
func NewIndexFromStrings(facts []string, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return build(facts, cfg)
}

func build(raw []string, cfg config) *index {
	facts := make([]fact, 0, len(raw))
	for _, r := range raw {
		t := strings.TrimSpace(normalizeWhitespace(r))
		if t == "" {
			continue
		}
		if cfg.minFactRunes > 0 && utf8.RuneCountInString(t) < cfg.minFactRunes {
			continue
		}
		toks := tokenize(t, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		facts = append(facts, fact{text: t, tokens: toks, tLen: len(toks)})
		if cfg.maxFacts > 0 && len(facts) >= cfg.maxFacts {
			break
		}
	}
	return &index{cfg: cfg, facts: facts}
}

// TopK returns up to k best-matching facts by Jaccard similarity. Ties are
// broken by preferring shorter facts, then lexicographically, so results are
// deterministic.
func (i *index) TopK(q string, k int) []Result {
	if len(i.facts) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	type scored struct {
		snippet  string
		score    float64
		lenRunes int
	}

	buf := make([]scored, 0, len(i.facts))
	for _, f := range i.facts {
		over := overlap(qTokens, f.tokens)
		if over == 0 {
			continue
		}
		union := float64(qLen + f.tLen - over)
		if union <= 0 {
			continue
		}
		score := float64(over) / union
		if score <= 0 {
			continue
		}
		buf = append(buf, scored{
			snippet:  f.text,
			score:    score,
			lenRunes: utf8.RuneCountInString(f.text),
		})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].lenRunes != buf[b].lenRunes {
			return buf[a].lenRunes < buf[b].lenRunes
		}
		return buf[a].snippet < buf[b].snippet
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for i := 0; i < k; i++ {
		out[i] = Result{Snippet: buf[i].snippet, Score: buf[i].score}
	}
	return out
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	s = strings.ToLower(s)
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

var factSplitRE = regexp.MustCompile(`\n\s*\n`)

func splitFacts(all []byte) []string {
	chunks := factSplitRE.Split(string(all), -1)
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c); t != "" {
			out = append(out, t)
		}
	}
	return out
}
