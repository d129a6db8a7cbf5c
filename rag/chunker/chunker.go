// Package chunker splits extracted document text into token-bounded,
// overlapping chunks. Splitting is deterministic: the same text with the
// same settings always yields the same chunks.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tutorkit/tutorkit/rag"
)

const (
	defaultTargetTokens   = 300
	defaultOverlapTokens  = 50
	defaultMinChunkTokens = 60
)

var (
	paragraphRe = regexp.MustCompile(`\n\s*\n`)
	sentenceRe  = regexp.MustCompile(`[^.!?]*[.!?]+\s*|[^.!?]+$`)
)

// Chunker splits text by paragraph boundaries first, falling back to
// sentence and then word boundaries for segments that exceed the target
// size on their own.
type Chunker struct {
	target   int
	overlap  int
	minChunk int
	counter  TokenCounter
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithTargetTokens sets the upper bound on chunk size.
func WithTargetTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.target = n
		}
	}
}

// WithOverlapTokens sets how many tokens of trailing context each chunk
// shares with the next. Values at or above the target are ignored.
func WithOverlapTokens(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// WithMinChunkTokens sets the threshold below which a trailing chunk is
// merged into its predecessor.
func WithMinChunkTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.minChunk = n
		}
	}
}

// WithTokenCounter sets the token counter.
func WithTokenCounter(tc TokenCounter) Option {
	return func(c *Chunker) {
		if tc != nil {
			c.counter = tc
		}
	}
}

// New creates a Chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		target:   defaultTargetTokens,
		overlap:  defaultOverlapTokens,
		minChunk: defaultMinChunkTokens,
		counter:  Estimator{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.target {
		c.overlap = defaultOverlapTokens
		if c.overlap >= c.target {
			c.overlap = c.target / 4
		}
	}
	return c
}

// Split chunks the text of one document. Chunk ids derive from the
// document id and the sequence index, so a re-split of the same document
// produces identical chunks. Empty or whitespace-only text yields no
// chunks.
func (c *Chunker) Split(docID, text string) []rag.Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	parts := c.pack(c.segments(text))
	parts = c.mergeTrailing(parts)

	chunks := make([]rag.Chunk, len(parts))
	for i, part := range parts {
		chunks[i] = rag.Chunk{
			ID:            fmt.Sprintf("%s-%04d", docID, i),
			DocumentID:    docID,
			SequenceIndex: i,
			Text:          part,
			TokenCount:    c.counter.Count(part),
		}
	}
	return chunks
}

// segments splits the text into pieces that each fit within the target
// size, preferring paragraph boundaries, then sentences, then words.
func (c *Chunker) segments(text string) []string {
	var segs []string
	for _, para := range paragraphRe.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if c.counter.Count(para) <= c.target {
			segs = append(segs, para)
			continue
		}
		for _, sent := range sentenceRe.FindAllString(para, -1) {
			sent = strings.TrimSpace(sent)
			if sent == "" {
				continue
			}
			if c.counter.Count(sent) <= c.target {
				segs = append(segs, sent)
				continue
			}
			segs = append(segs, c.splitWords(sent)...)
		}
	}
	return segs
}

// splitWords breaks an oversized sentence into word groups at most the
// target size each.
func (c *Chunker) splitWords(sent string) []string {
	var (
		groups []string
		cur    []string
		tokens int
	)
	for _, word := range strings.Fields(sent) {
		wt := c.counter.Count(word)
		if len(cur) > 0 && tokens+wt > c.target {
			groups = append(groups, strings.Join(cur, " "))
			cur = cur[:0]
			tokens = 0
		}
		cur = append(cur, word)
		tokens += wt
	}
	if len(cur) > 0 {
		groups = append(groups, strings.Join(cur, " "))
	}
	return groups
}

// pack greedily fills chunks with segments up to the target size,
// carrying an overlap tail from each emitted chunk into the next. The
// tail counts against the next chunk's budget: it is shrunk from the
// front until the first fresh segment fits, so no chunk exceeds the
// target.
func (c *Chunker) pack(segs []string) []string {
	var (
		parts  []string
		cur    []string
		tokens int
		fresh  int
	)
	for _, seg := range segs {
		st := c.counter.Count(seg)
		if fresh > 0 && tokens+st > c.target {
			parts = append(parts, strings.Join(cur, "\n"))
			cur, tokens = c.overlapTail(cur)
			fresh = 0
		}
		if fresh == 0 {
			for len(cur) > 0 && tokens+st > c.target {
				tokens -= c.counter.Count(cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, seg)
		tokens += st
		fresh++
	}
	if fresh > 0 {
		parts = append(parts, strings.Join(cur, "\n"))
	}
	return parts
}

// overlapTail returns the trailing segments of a chunk whose combined
// size stays within the overlap budget.
func (c *Chunker) overlapTail(segs []string) ([]string, int) {
	if c.overlap == 0 {
		return nil, 0
	}
	var tokens int
	start := len(segs)
	for i := len(segs) - 1; i >= 0; i-- {
		st := c.counter.Count(segs[i])
		if tokens+st > c.overlap {
			break
		}
		tokens += st
		start = i
	}
	tail := make([]string, len(segs)-start)
	copy(tail, segs[start:])
	return tail, tokens
}

// mergeTrailing folds a final chunk smaller than the minimum size into
// the chunk before it.
func (c *Chunker) mergeTrailing(parts []string) []string {
	if len(parts) < 2 {
		return parts
	}
	last := parts[len(parts)-1]
	if c.counter.Count(last) >= c.minChunk {
		return parts
	}
	parts[len(parts)-2] = parts[len(parts)-2] + "\n" + last
	return parts[:len(parts)-1]
}
