package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tutorkit/tutorkit/provider"
	"github.com/tutorkit/tutorkit/rag"
)

// embedBatchSize bounds how many chunks go into one embedding request.
const embedBatchSize = 64

// insightSourceLimit caps how much document text feeds the upload
// summary prompt.
const insightSourceLimit = 6000

// UploadResult describes a completed upload.
type UploadResult struct {
	Document rag.Document
	Chunks   int
	Pages    int
	// Summary and SuggestedQuestions are set when insights were
	// requested.
	Summary            string
	SuggestedQuestions []string
}

type uploadOptions struct {
	insights bool
}

// UploadOption configures one upload.
type UploadOption func(*uploadOptions)

// WithInsights asks the model for a short summary and suggested starter
// questions once the document is indexed.
func WithInsights() UploadOption {
	return func(o *uploadOptions) { o.insights = true }
}

// UploadDocument extracts, chunks, embeds and indexes one file into the
// session's corpus. The document becomes immediately available to
// document-grounded questions on that session.
func (e *Engine) UploadDocument(ctx context.Context, sessionID, fileName string, data []byte, opts ...UploadOption) (*UploadResult, error) {
	var options uploadOptions
	for _, opt := range opts {
		opt(&options)
	}

	if _, err := e.sessions.Get(sessionID); err != nil {
		return nil, err
	}

	extraction, err := e.extractor.Extract(ctx, fileName, data)
	if err != nil {
		return nil, err
	}

	doc := rag.Document{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		FileName:  fileName,
		Format:    extraction.Format,
		CreatedAt: time.Now(),
	}

	chunks := e.chunker.Split(doc.ID, extraction.Text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document produced no chunks", rag.ErrExtractionFailed)
	}

	vectors, err := e.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	c := e.corpusFor(sessionID)
	c.mu.Lock()
	for i, chunk := range chunks {
		if err := c.index.Insert(chunk, vectors[i]); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	c.docs[doc.ID] = doc
	c.docOrder = append(c.docOrder, doc.ID)
	c.mu.Unlock()

	e.logger.Info("indexed %q for session %s: %d chunks", fileName, sessionID, len(chunks))

	result := &UploadResult{Document: doc, Chunks: len(chunks), Pages: extraction.Pages}
	if options.insights {
		result.Summary, result.SuggestedQuestions = e.uploadInsights(ctx, extraction.Text)
	}
	return result, nil
}

func (e *Engine) embedChunks(ctx context.Context, chunks []rag.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batchCtx, cancel := context.WithTimeout(ctx, e.cfg.Retrieval.EmbedTimeout())
		batch, err := e.embedder.Embed(batchCtx, texts[start:end])
		cancel()
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// uploadInsights generates a short summary and starter questions for a
// freshly indexed document. Failures here never fail the upload.
func (e *Engine) uploadInsights(ctx context.Context, text string) (string, []string) {
	source := text
	if len(source) > insightSourceLimit {
		source = source[:insightSourceLimit]
	}

	genCtx, cancel := context.WithTimeout(ctx, e.cfg.Retrieval.GenerateTimeout())
	defer cancel()

	summary, err := e.generator.Generate(genCtx, provider.Prompt{
		System: "You summarize study materials for students in two or three plain sentences.",
		Messages: []provider.Message{{
			Role:    provider.RoleUser,
			Content: "Summarize this document:\n\n" + source,
		}},
	})
	if err != nil {
		e.logger.Warn("upload summary generation failed: %v", err)
		return "", nil
	}

	raw, err := e.generator.Generate(genCtx, provider.Prompt{
		System: "You suggest study questions. Reply with exactly three questions, one per line, no numbering.",
		Messages: []provider.Message{{
			Role:    provider.RoleUser,
			Content: "Suggest three questions a student could ask about this document:\n\n" + source,
		}},
	})
	if err != nil {
		e.logger.Warn("suggested question generation failed: %v", err)
		return strings.TrimSpace(summary), nil
	}

	return strings.TrimSpace(summary), parseQuestionLines(raw)
}

func parseQuestionLines(raw string) []string {
	var questions []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. ")
		if line == "" {
			continue
		}
		questions = append(questions, line)
		if len(questions) == 3 {
			break
		}
	}
	return questions
}
