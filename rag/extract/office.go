package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tutorkit/tutorkit/rag"
)

var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// extractDocx reads the main document part of a Word file. Paragraphs
// become lines; table rows become lines with cells joined by " | ".
// Legacy binary .doc files are not zip archives and fail here.
func extractDocx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: not a Word document: %v", rag.ErrExtractionFailed, err)
	}

	part, err := openZipFile(zr, "word/document.xml")
	if err != nil {
		return "", fmt.Errorf("%w: %v", rag.ErrExtractionFailed, err)
	}
	defer part.Close()

	text, err := parseDocxXML(part)
	if err != nil {
		return "", fmt.Errorf("%w: %v", rag.ErrExtractionFailed, err)
	}
	return text, nil
}

func parseDocxXML(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		body   strings.Builder
		cell   strings.Builder
		row    []string
		inText bool
		inCell bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tc":
				inCell = true
				cell.Reset()
			case "tab":
				target(&body, &cell, inCell).WriteByte(' ')
			case "br":
				target(&body, &cell, inCell).WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "tc":
				inCell = false
				row = append(row, strings.TrimSpace(cell.String()))
			case "tr":
				body.WriteString(strings.Join(row, " | "))
				body.WriteByte('\n')
				row = nil
			case "p":
				if !inCell {
					body.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inText {
				target(&body, &cell, inCell).Write(t)
			}
		}
	}
	return body.String(), nil
}

func target(body, cell *strings.Builder, inCell bool) *strings.Builder {
	if inCell {
		return cell
	}
	return body
}

// extractPptx reads every slide of a PowerPoint file in slide order,
// prefixing each slide's text with its number.
func extractPptx(data []byte) (string, int, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("%w: not a PowerPoint document: %v", rag.ErrExtractionFailed, err)
	}

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		m := slideNameRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: num, file: f})
	}
	if len(slides) == 0 {
		return "", 0, fmt.Errorf("%w: presentation has no slides", rag.ErrExtractionFailed)
	}
	sort.Slice(slides, func(a, b int) bool { return slides[a].num < slides[b].num })

	var parts []string
	for _, s := range slides {
		text, err := parseSlide(s.file)
		if err != nil {
			return "", 0, fmt.Errorf("%w: slide %d: %v", rag.ErrExtractionFailed, s.num, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, fmt.Sprintf("Slide %d:\n%s", s.num, text))
		}
	}
	return strings.Join(parts, "\n\n"), len(slides), nil
}

func parseSlide(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)

	var (
		b      strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

func openZipFile(zr *zip.Reader, name string) (io.ReadCloser, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("missing %s", name)
}

// sniffOOXML opens the zip container and tells Word from PowerPoint by
// the parts it carries.
func sniffOOXML(data []byte) (rag.Format, bool) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", false
	}
	for _, f := range zr.File {
		switch {
		case f.Name == "word/document.xml":
			return rag.FormatWord, true
		case strings.HasPrefix(f.Name, "ppt/slides/"):
			return rag.FormatPresentation, true
		}
	}
	return "", false
}
