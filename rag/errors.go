package rag

import "errors"

var (
	// ErrUnsupportedFormat indicates the file matches none of the
	// supported formats, by extension or by content sniffing.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrPayloadTooLarge indicates the file exceeds the configured
	// maximum upload size. Checked before any extraction buffer is
	// allocated.
	ErrPayloadTooLarge = errors.New("document exceeds maximum upload size")

	// ErrExtractionFailed indicates no usable text could be extracted.
	// Partial page failures are tolerated and do not produce this error.
	ErrExtractionFailed = errors.New("document text extraction failed")

	// ErrDimensionMismatch indicates a vector's length disagrees with
	// the dimensionality the index was established with.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingBackendMismatch indicates a query was embedded with a
	// different backend identity than the index it targets.
	ErrEmbeddingBackendMismatch = errors.New("embedding backend mismatch")

	// ErrNotFound indicates a chunk lookup by id found nothing.
	ErrNotFound = errors.New("chunk not found")
)
