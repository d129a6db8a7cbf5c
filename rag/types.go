// Package rag defines the shared data model of the retrieval pipeline:
// documents, chunks and the error taxonomy the pipeline packages use.
package rag

import (
	"time"
)

// Format identifies a supported document format.
type Format string

const (
	// FormatPDF is a PDF document.
	FormatPDF Format = "pdf"
	// FormatWord is a Word document (.docx/.doc).
	FormatWord Format = "docx"
	// FormatPresentation is a PowerPoint presentation (.pptx/.ppt).
	FormatPresentation Format = "pptx"
	// FormatHTML is a web page.
	FormatHTML Format = "html"
)

// Document describes one uploaded file. It is owned by the session that
// uploaded it and disappears with that session.
type Document struct {
	ID        string
	SessionID string
	FileName  string
	Format    Format
	CreatedAt time.Time
}

// Chunk is the atomic retrieval unit: a bounded contiguous slice of a
// document's text. Chunks are immutable once created; SequenceIndex
// preserves document order for traceability but has no effect on
// retrieval ranking.
type Chunk struct {
	ID            string
	DocumentID    string
	SequenceIndex int
	Text          string
	TokenCount    int
	Metadata      map[string]any
}

// ScoredChunk pairs a chunk with its similarity score for one query.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}
