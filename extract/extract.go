// Package extract turns raw uploaded bytes into sanitized plain text.
//
// PDF input is read page by page with github.com/ledongthuc/pdf. Input the
// parser rejects is decoded as raw UTF-8 text instead, so non-PDF uploads
// still produce a result. The result records which path produced it.
package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/poiesic/kbase/core"
)

// Mode names the path that produced an Extraction.
type Mode string

const (
	// ModeStructured means the PDF parser read every page.
	ModeStructured Mode = "structured"
	// ModeRawFallback means the bytes were decoded as text after the parser failed.
	ModeRawFallback Mode = "raw_fallback"
)

const pageSeparator = "\n\n"

// Extraction is the sanitized text of one document.
type Extraction struct {
	Text string
	// Pages holds the rune offset at which each page starts in Text.
	// Raw fallback results carry a single implicit page.
	Pages []core.PageBoundary
	Mode  Mode
	// ParseError is the structured-path failure that caused a fallback.
	ParseError error
}

// PageCount returns the number of pages the extraction saw.
func (e *Extraction) PageCount() int {
	return len(e.Pages)
}

// Extractor extracts text from documents.
type Extractor struct {
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "extractor")
	return e
}

// Extract returns the sanitized text of data. It returns
// core.ErrNoExtractableText when neither path yields any text.
func (e *Extractor) Extract(data []byte) (*Extraction, error) {
	result, err := structured(data)
	if err != nil {
		e.logger.Warn("structured extraction failed, using raw text", "error", err, "bytes", len(data))
		result = rawFallback(data)
		result.ParseError = err
	}
	if result.Text == "" {
		return nil, fmt.Errorf("%w: %s extraction produced no text", core.ErrNoExtractableText, result.Mode)
	}
	e.logger.Debug("extracted text", "mode", result.Mode, "pages", result.PageCount(), "chars", utf8.RuneCountInString(result.Text))
	return result, nil
}

// structured reads data as a PDF. Parser panics are returned as errors.
func structured(data []byte) (result *Extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: pdf parser panic: %v", core.ErrExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrExtraction, err)
	}

	var (
		builder strings.Builder
		pages   []core.PageBoundary
		offset  int
	)
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", core.ErrExtraction, i, err)
		}
		text = collapseSpaces(Sanitize(text))

		if builder.Len() > 0 && text != "" {
			builder.WriteString(pageSeparator)
			offset += len(pageSeparator)
		}
		pages = append(pages, core.PageBoundary{Page: i, Offset: offset})
		builder.WriteString(text)
		offset += utf8.RuneCountInString(text)
	}

	return &Extraction{
		Text:  builder.String(),
		Pages: pages,
		Mode:  ModeStructured,
	}, nil
}

// rawFallback decodes data as UTF-8, dropping invalid sequences.
func rawFallback(data []byte) *Extraction {
	text := strings.TrimSpace(Sanitize(strings.ToValidUTF8(string(data), "")))
	return &Extraction{
		Text:  text,
		Pages: []core.PageBoundary{{Page: 1, Offset: 0}},
		Mode:  ModeRawFallback,
	}
}

// Sanitize removes C0 control characters other than tab, newline and
// carriage return, and DEL. Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// collapseSpaces joins the whitespace separated items of s with single spaces.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
