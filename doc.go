// TutorKit - Session-Scoped Retrieval-Augmented Study Companion in Go
//
// TutorKit is the in-memory core of a study-companion service: it ingests
// course material (PDF, Word, PowerPoint, web pages), splits it into
// retrievable chunks, embeds and indexes them per session, and answers
// questions by retrieving the most relevant chunks and conditioning a
// generation backend on them. Alongside the RAG engine it owns the
// session and conversation store: guest and authenticated sessions,
// multi-turn histories, free-turn quotas, and idle-session expiration.
//
// # Quick Start
//
// Install the package:
//
//	go get github.com/tutorkit/tutorkit
//
// Basic example:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"os"
//
//		"github.com/tutorkit/tutorkit/config"
//		"github.com/tutorkit/tutorkit/engine"
//		"github.com/tutorkit/tutorkit/provider"
//		"github.com/tutorkit/tutorkit/rag/answer"
//	)
//
//	func main() {
//		cfg := config.Default()
//		eng, _ := engine.New(cfg, engine.WithProvider("openai", provider.Credential{
//			APIKey: os.Getenv("OPENAI_API_KEY"),
//		}))
//		eng.Start()
//		defer eng.Shutdown()
//
//		sess := eng.CreateGuestSession()
//
//		data, _ := os.ReadFile("notes.pdf")
//		up, _ := eng.UploadDocument(context.Background(), sess.ID, "notes.pdf", data)
//
//		res, _ := eng.Ask(context.Background(), engine.AskRequest{
//			SessionID: sess.ID,
//			Mode:      answer.ModeDocument,
//			Question:  "What is photosynthesis?",
//		})
//		fmt.Println(res.Answer, up.Chunks)
//	}
//
// # Key Features
//
//   - Document ingestion: PDF (dual extraction strategies), Word,
//     PowerPoint and HTML, with size limits and format detection
//   - Deterministic chunking: token-bounded overlapping chunks with
//     exact (tiktoken) or estimated token counting
//   - Per-session vector indices: brute-force cosine search sized for
//     single-document corpora, with embedding-identity binding
//   - Three answer modes: plain chat, document-grounded, and a
//     guided-explainer mode with a structured, defensively parsed
//     output envelope
//   - Session store: free-turn quotas with atomic reservation,
//     conversation histories, and a background expiration sweep
//   - Pluggable backends: embedding and generation ports selected by
//     provider name, with streaming support and bounded timeouts
//
// Transport (HTTP, RPC), authentication protocols and durable
// persistence are deliberately out of scope: callers wire the engine
// facade into whatever surface they need.
package tutorkit
