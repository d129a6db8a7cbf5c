package answer

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// ErrMalformedEnvelope indicates the model's structured output could not
// be parsed. Callers always recover from it; it never reaches the
// engine's public surface.
var ErrMalformedEnvelope = errors.New("malformed structured output")

// fallbackAnswer replaces output that could not be parsed at all. Raw
// unparsed model output is never shown to the student.
const fallbackAnswer = "Sorry, I had trouble putting that explanation together. Please ask the question again."

// envelope is the JSON shape the guided explainer asks the model for.
type envelope struct {
	Answer    string   `json:"answer"`
	FollowUps []string `json:"follow_up_questions"`
}

// parseEnvelope extracts the answer and follow-up questions from raw
// model output. It tries strict JSON first, tolerating surrounding prose
// and code fences, then falls back to scanning the markdown structure
// for the requested sections. When both fail it returns a fixed fallback
// answer with ErrMalformedEnvelope; raw unparseable output is never
// forwarded.
func parseEnvelope(raw string) (string, []string, error) {
	if env, ok := parseJSONEnvelope(raw); ok {
		return env.Answer, cleanFollowUps(env.FollowUps), nil
	}
	if followUps, ok := parseMarkdownEnvelope(raw); ok {
		return raw, followUps, nil
	}
	return fallbackAnswer, nil, ErrMalformedEnvelope
}

func parseJSONEnvelope(raw string) (envelope, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return envelope{}, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw[start:end+1]), &env); err != nil {
		return envelope{}, false
	}
	if strings.TrimSpace(env.Answer) == "" {
		return envelope{}, false
	}
	return env, true
}

// parseMarkdownEnvelope walks the markdown tree for the sections the
// explainer prompt asks for. Models that ignore the JSON instruction
// usually still emit the section headings, so recognizable lesson
// structure makes the text safe to forward; list items under a heading
// that mentions follow-ups become the follow-up questions.
func parseMarkdownEnvelope(raw string) ([]string, bool) {
	p := parser.New()
	doc := p.Parse([]byte(raw))

	var (
		followUps  []string
		structured bool
		inSection  bool
	)
	for _, node := range doc.GetChildren() {
		switch n := node.(type) {
		case *ast.Heading:
			title := strings.ToLower(nodeText(n))
			inSection = strings.Contains(title, "follow")
			if strings.Contains(title, "explanation") ||
				strings.Contains(title, "example") ||
				strings.Contains(title, "practice") {
				structured = true
			}
		case *ast.List:
			if !inSection {
				continue
			}
			for _, item := range n.GetChildren() {
				if text := strings.TrimSpace(nodeText(item)); text != "" {
					followUps = append(followUps, text)
				}
			}
		}
	}
	return followUps, structured || len(followUps) > 0
}

func nodeText(node ast.Node) string {
	var b strings.Builder
	ast.WalkFunc(node, func(n ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		if leaf := n.AsLeaf(); leaf != nil {
			b.Write(leaf.Literal)
		}
		return ast.GoToNext
	})
	return b.String()
}

func cleanFollowUps(raw []string) []string {
	var out []string
	for _, q := range raw {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}
