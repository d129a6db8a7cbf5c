package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/tmc/langchaingo/documentloaders"

	"github.com/tutorkit/tutorkit/rag"
)

// extractPDF runs two extraction strategies and keeps the better result.
// The document-loader strategy handles well-formed files; the page-wise
// reader tolerates files where individual pages are broken, skipping the
// pages it cannot read.
func (e *Extractor) extractPDF(ctx context.Context, data []byte) (string, int, error) {
	primary, pages, primaryErr := e.pdfViaLoader(ctx, data)
	if primaryErr == nil && countNonSpace(primary) >= usableTextThreshold {
		return primary, pages, nil
	}
	if primaryErr != nil {
		e.logger.Debug("pdf loader strategy failed, trying page-wise reader: %v", primaryErr)
	}

	secondary, secondaryPages, secondaryErr := e.pdfPageWise(data)
	if secondaryErr != nil || countNonSpace(secondary) == 0 {
		// Neither strategy produced text; prefer reporting the primary
		// failure if there was one.
		if primaryErr == nil && countNonSpace(primary) > 0 {
			return primary, pages, nil
		}
		err := primaryErr
		if err == nil {
			err = secondaryErr
		}
		if err == nil {
			return "", 0, fmt.Errorf("%w: pdf contains no extractable text", rag.ErrExtractionFailed)
		}
		return "", 0, fmt.Errorf("%w: %v", rag.ErrExtractionFailed, err)
	}

	if countNonSpace(secondary) > countNonSpace(primary) {
		return secondary, secondaryPages, nil
	}
	return primary, pages, nil
}

func (e *Extractor) pdfViaLoader(ctx context.Context, data []byte) (string, int, error) {
	loader := documentloaders.NewPDF(bytes.NewReader(data), int64(len(data)))
	docs, err := loader.Load(ctx)
	if err != nil {
		return "", 0, err
	}

	var parts []string
	for i, doc := range docs {
		if i >= e.maxPages {
			break
		}
		if text := strings.TrimSpace(doc.PageContent); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), len(docs), nil
}

// pdfPageWise reads pages one at a time so a single corrupt page does
// not sink the whole document.
func (e *Extractor) pdfPageWise(data []byte) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, err
	}

	total := reader.NumPage()
	limit := total
	if limit > e.maxPages {
		limit = e.maxPages
	}

	var parts []string
	for i := 1; i <= limit; i++ {
		text, pageErr := e.readPage(reader, i)
		if pageErr != nil {
			e.logger.Debug("skipping unreadable pdf page %d: %v", i, pageErr)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), total, nil
}

// readPage isolates the panics the pdf library raises on malformed
// content streams.
func (e *Extractor) readPage(reader *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", n, r)
		}
	}()

	page := reader.Page(n)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d: missing", n)
	}
	return page.GetPlainText(nil)
}
