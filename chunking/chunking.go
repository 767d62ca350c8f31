// Package chunking splits extracted text into overlapping, sentence aligned
// segments sized in characters.
package chunking

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/poiesic/kbase/core"
)

// Default sizes in characters.
const (
	DefaultMaxChunkSize = 1000
	DefaultOverlapSize  = 200
)

// Segment is one chunk of text before it is embedded.
type Segment struct {
	Index   int
	Content string
	// OverlapStart is the length of the prefix copied from the previous segment.
	OverlapStart int
	// OverlapEnd is the length of the suffix copied into the next segment.
	OverlapEnd int
	PageStart  int
	PageEnd    int
	TokenCount int
}

// Chunker splits text. It is safe for concurrent use.
type Chunker struct {
	maxChunkSize int
	overlapSize  int
	logger       *slog.Logger
}

// New creates a Chunker. overlapSize must be smaller than maxChunkSize,
// otherwise splitting could stop making progress.
func New(maxChunkSize, overlapSize int) (*Chunker, error) {
	if maxChunkSize <= 0 {
		return nil, fmt.Errorf("%w: max chunk size must be positive, got %d", core.ErrConfiguration, maxChunkSize)
	}
	if overlapSize < 0 {
		return nil, fmt.Errorf("%w: overlap size must not be negative, got %d", core.ErrConfiguration, overlapSize)
	}
	if overlapSize >= maxChunkSize {
		return nil, fmt.Errorf("%w: overlap size %d must be smaller than max chunk size %d", core.ErrConfiguration, overlapSize, maxChunkSize)
	}
	return &Chunker{
		maxChunkSize: maxChunkSize,
		overlapSize:  overlapSize,
		logger:       slog.Default().With("component", "chunker"),
	}, nil
}

// MaxChunkSize returns the configured maximum chunk size.
func (c *Chunker) MaxChunkSize() int { return c.maxChunkSize }

// OverlapSize returns the configured overlap size.
func (c *Chunker) OverlapSize() int { return c.overlapSize }

// sentence is one normalized sentence and the rune offset it came from.
type sentence struct {
	text   []rune
	offset int
}

// Split returns the segments of text in order. pages maps rune offsets of
// text to page numbers; when empty every segment is attributed to page 1.
func (c *Chunker) Split(text string, pages []core.PageBoundary) []Segment {
	sentences := c.wrap(splitSentences(text))

	var (
		segments  []Segment
		buf       []rune
		overlap   int
		firstPage int
		lastPage  int
	)
	for _, s := range sentences {
		page := pageAt(pages, s.offset)
		if len(buf) > 0 && len(buf)+len(s.text) > c.maxChunkSize {
			segments = append(segments, Segment{
				Content:      string(buf),
				OverlapStart: overlap,
				PageStart:    firstPage,
				PageEnd:      lastPage,
			})
			seed := buf[len(buf)-min(c.overlapSize, len(buf)):]
			next := make([]rune, 0, len(seed)+1+len(s.text))
			if len(seed) > 0 {
				next = append(next, seed...)
				next = append(next, ' ')
			}
			buf = append(next, s.text...)
			overlap = len(seed)
			firstPage, lastPage = page, page
			continue
		}
		if len(buf) == 0 {
			firstPage = page
		} else {
			buf = append(buf, ' ')
		}
		buf = append(buf, s.text...)
		lastPage = page
	}
	if len(buf) > 0 {
		segments = append(segments, Segment{
			Content:      string(buf),
			OverlapStart: overlap,
			PageStart:    firstPage,
			PageEnd:      lastPage,
		})
	}

	return finish(segments)
}

// finish drops blank segments and fills in indices, trailing overlaps and
// token estimates.
func finish(segments []Segment) []Segment {
	kept := segments[:0]
	for _, seg := range segments {
		if strings.TrimSpace(seg.Content) == "" {
			continue
		}
		kept = append(kept, seg)
	}
	for i := range kept {
		kept[i].Index = i
		kept[i].TokenCount = core.EstimateTokens(kept[i].Content)
		if i+1 < len(kept) {
			kept[i].OverlapEnd = kept[i+1].OverlapStart
		} else {
			kept[i].OverlapEnd = 0
		}
	}
	return kept
}

// splitSentences splits text on runs of '.', '!' and '?'. Fragments are
// trimmed, blank ones dropped, and every kept fragment ends with '.'.
func splitSentences(text string) []sentence {
	var (
		out   []sentence
		start = -1
		runes = []rune(text)
	)
	flush := func(end int) {
		if start < 0 {
			return
		}
		fragment := runes[start:end]
		lead := 0
		for lead < len(fragment) && unicode.IsSpace(fragment[lead]) {
			lead++
		}
		trail := len(fragment)
		for trail > lead && unicode.IsSpace(fragment[trail-1]) {
			trail--
		}
		if trail > lead {
			s := make([]rune, 0, trail-lead+1)
			s = append(s, fragment[lead:trail]...)
			out = append(out, sentence{text: append(s, '.'), offset: start + lead})
		}
		start = -1
	}
	for i, r := range runes {
		if r == '.' || r == '!' || r == '?' {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(runes))
	return out
}

// wrap cuts sentences longer than the maximum chunk size into pieces of
// at most that size.
func (c *Chunker) wrap(sentences []sentence) []sentence {
	var out []sentence
	for _, s := range sentences {
		if len(s.text) <= c.maxChunkSize {
			out = append(out, s)
			continue
		}
		c.logger.Debug("wrapping long sentence", "chars", len(s.text), "max", c.maxChunkSize)
		for i := 0; i < len(s.text); i += c.maxChunkSize {
			end := min(i+c.maxChunkSize, len(s.text))
			out = append(out, sentence{text: s.text[i:end], offset: s.offset + i})
		}
	}
	return out
}

// pageAt returns the page containing the rune offset.
func pageAt(pages []core.PageBoundary, offset int) int {
	page := 1
	for _, boundary := range pages {
		if boundary.Offset > offset {
			break
		}
		page = boundary.Page
	}
	return page
}
