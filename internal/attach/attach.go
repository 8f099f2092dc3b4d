// Package attach loads local files as plain text so they can be placed in a
// prompt as context.
package attach

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// DefaultMaxBytes caps how much text a single attachment may contribute.
const DefaultMaxBytes = 256 << 10

// ErrUnsupported is returned for file types Load cannot read.
var ErrUnsupported = errors.New("unsupported attachment type")

// ErrTooLarge is returned when an attachment's text exceeds the size cap.
var ErrTooLarge = errors.New("attachment too large")

// Document is the extracted text of one file.
type Document struct {
	Path  string
	Title string
	Kind  string // "text", "html" or "pdf"
	Text  string
}

// Loader reads attachments up to MaxBytes of extracted text.
type Loader struct {
	MaxBytes int64
}

// Load reads path with the default size cap.
func Load(path string) (Document, error) {
	return Loader{MaxBytes: DefaultMaxBytes}.Load(path)
}

// Load extracts the text of path, choosing a reader by file extension.
func (l Loader) Load(path string) (Document, error) {
	limit := l.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}

	doc := Document{Path: path, Title: filepath.Base(path)}
	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown", ".text", "":
		doc.Kind = "text"
		text, err = readText(path, limit)
	case ".html", ".htm":
		doc.Kind = "html"
		var title string
		text, title, err = readHTML(path, limit)
		if title != "" {
			doc.Title = title
		}
	case ".pdf":
		doc.Kind = "pdf"
		text, err = readPDF(path, limit)
	default:
		return Document{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
	if err != nil {
		return Document{}, fmt.Errorf("loading %s: %w", path, err)
	}
	doc.Text = strings.TrimSpace(text)
	return doc, nil
}

// limitedRead reads at most limit bytes from r and fails if more remain.
func limitedRead(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return b, nil
}

func readText(path string, limit int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := limitedRead(f, limit)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readPDF(path string, limit int64) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	b, err := limitedRead(plain, limit)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readHTML returns the visible text of an HTML file with whitespace runs
// collapsed, and the document title if there is one. Script and style
// contents are skipped.
func readHTML(path string, limit int64) (string, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	// The markup may be larger than the text it yields.
	raw, err := limitedRead(f, 4*limit)
	if err != nil {
		return "", "", err
	}

	text, title := extractHTML(bytes.NewReader(raw))
	if int64(len(text)) > limit {
		return "", "", fmt.Errorf("%w: more than %d bytes of text", ErrTooLarge, limit)
	}
	return text, title, nil
}

func extractHTML(r io.Reader) (text, title string) {
	var sb, tb strings.Builder
	z := html.NewTokenizer(r)
	skip, inTitle := 0, false

	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " "), strings.TrimSpace(tb.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				skip++
			case "title":
				inTitle = true
			case "p", "br", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				if skip > 0 {
					skip--
				}
			case "title":
				inTitle = false
			}
		case html.TextToken:
			switch {
			case inTitle:
				tb.Write(z.Text())
			case skip == 0:
				sb.Write(z.Text())
			}
		}
	}
}

// Prepend places the documents ahead of the question as labeled context blocks.
func Prepend(docs []Document, question string) string {
	if len(docs) == 0 {
		return question
	}
	var sb strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&sb, "Context (%s):\n%s\n\n", d.Title, d.Text)
	}
	sb.WriteString(question)
	return sb.String()
}
