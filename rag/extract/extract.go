// Package extract turns uploaded files into plain text. It supports PDF,
// Word, PowerPoint and HTML inputs, detecting the format from the file
// name first and the file content second.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/tutorkit/tutorkit/log"
	"github.com/tutorkit/tutorkit/rag"
)

// usableTextThreshold is the minimum number of non-space runes an
// extraction strategy must produce to count as successful.
const usableTextThreshold = 32

// Extraction is the result of extracting one document.
type Extraction struct {
	Text   string
	Format rag.Format
	// Pages counts PDF pages or presentation slides; 0 for other formats.
	Pages int
}

// Extractor extracts text from uploaded files.
type Extractor struct {
	maxBytes int64
	maxPages int
	logger   log.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxBytes sets the upload size limit.
func WithMaxBytes(n int64) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxBytes = n
		}
	}
}

// WithMaxPages caps how many PDF pages are extracted.
func WithMaxPages(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxPages = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Extractor with the given options.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		maxBytes: 15 << 20,
		maxPages: 100,
		logger:   log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract detects the file format and extracts its text. The size limit
// is enforced before any parsing begins. Extraction that yields no
// usable text returns rag.ErrExtractionFailed.
func (e *Extractor) Extract(ctx context.Context, fileName string, data []byte) (*Extraction, error) {
	if int64(len(data)) > e.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", rag.ErrPayloadTooLarge, len(data), e.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", rag.ErrExtractionFailed)
	}

	format, err := DetectFormat(fileName, data)
	if err != nil {
		return nil, err
	}

	var (
		text  string
		pages int
	)
	switch format {
	case rag.FormatPDF:
		text, pages, err = e.extractPDF(ctx, data)
	case rag.FormatWord:
		text, err = extractDocx(data)
	case rag.FormatPresentation:
		text, pages, err = extractPptx(data)
	case rag.FormatHTML:
		text, err = extractHTML(data)
	}
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if countNonSpace(text) == 0 {
		return nil, fmt.Errorf("%w: no text in %s", rag.ErrExtractionFailed, fileName)
	}

	e.logger.Debug("extracted %q: format=%s pages=%d chars=%d", fileName, format, pages, len(text))
	return &Extraction{Text: text, Format: format, Pages: pages}, nil
}

// DetectFormat resolves the document format from the file extension,
// falling back to content sniffing when the extension is missing or
// unknown.
func DetectFormat(fileName string, data []byte) (rag.Format, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return rag.FormatPDF, nil
	case ".docx", ".doc":
		return rag.FormatWord, nil
	case ".pptx", ".ppt":
		return rag.FormatPresentation, nil
	case ".html", ".htm":
		return rag.FormatHTML, nil
	}
	if f, ok := sniffFormat(data); ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %s", rag.ErrUnsupportedFormat, fileName)
}

// sniffFormat inspects magic bytes. OOXML containers are zip archives,
// so the zip case peeks inside to tell Word from PowerPoint.
func sniffFormat(data []byte) (rag.Format, bool) {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return rag.FormatPDF, true
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		if f, ok := sniffOOXML(data); ok {
			return f, true
		}
		return "", false
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	head = bytes.ToLower(head)
	if bytes.Contains(head, []byte("<html")) || bytes.Contains(head, []byte("<!doctype html")) {
		return rag.FormatHTML, true
	}
	return "", false
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
