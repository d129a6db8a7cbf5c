package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/tutorkit/tutorkit/rag"
)

var blankRunRe = regexp.MustCompile(`\n{3,}`)

// extractHTML extracts readable text from a web page. The markup is
// sanitized first so script and style bodies never leak into the text.
func extractHTML(data []byte) (string, error) {
	title := htmlTitle(data)

	clean := bluemonday.UGCPolicy().SanitizeBytes(data)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(clean))
	if err != nil {
		return "", fmt.Errorf("%w: %v", rag.ErrExtractionFailed, err)
	}

	var parts []string
	doc.Find("body").Each(func(_ int, body *goquery.Selection) {
		parts = append(parts, body.Text())
	})
	text := normalizeWhitespace(strings.Join(parts, "\n"))

	if title != "" {
		text = title + "\n\n" + text
	}
	return text, nil
}

// htmlTitle pulls the page title from the raw markup; sanitizing strips
// the head, so this runs first.
func htmlTitle(data []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(strings.Join(strings.Fields(line), " "))
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankRunRe.ReplaceAllString(s, "\n\n"))
}
