// Package extract pulls plain text and page counts out of uploaded documents.
// Failures are reported as "no text" rather than errors: callers decide what
// an empty result means for them.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Content types with dedicated extractors.
const (
	TypePDF   = "application/pdf"
	TypeDOCX  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypeDOC   = "application/msword"
	TypePlain = "text/plain"
)

// paragraphsPerPage approximates pages for word documents.
const paragraphsPerPage = 20

// Text returns the document text and whether anything usable was found.
func Text(ctx context.Context, r io.ReaderAt, size int64, contentType string) (text string, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			text, ok = "", false
		}
	}()

	if ctx.Err() != nil {
		return "", false
	}

	switch baseType(contentType) {
	case TypePDF:
		text = pdfText(r, size)
	case TypeDOCX, TypeDOC:
		paragraphs, err := docxParagraphs(r, size)
		if err != nil {
			return "", false
		}
		text = strings.Join(paragraphs, "\n")
	default:
		// text/plain and unknown types are accepted when they decode as UTF-8.
		data, err := io.ReadAll(io.NewSectionReader(r, 0, size))
		if err != nil || !utf8.Valid(data) {
			return "", false
		}
		text = string(data)
	}

	text = strings.TrimSpace(text)
	return text, text != ""
}

// Pages returns the page count, or nil when it cannot be determined.
func Pages(r io.ReaderAt, size int64, contentType string) (pages *int) {
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
		}
	}()

	switch baseType(contentType) {
	case TypePDF:
		doc, err := pdf.NewReader(r, size)
		if err != nil {
			return nil
		}
		n := doc.NumPage()
		return &n
	case TypeDOCX, TypeDOC:
		paragraphs, err := docxParagraphs(r, size)
		if err != nil {
			return nil
		}
		n := max(1, len(paragraphs)/paragraphsPerPage)
		return &n
	}
	return nil
}

func baseType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

func pdfText(r io.ReaderAt, size int64) string {
	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return ""
	}

	var b strings.Builder
	for i := 1; i <= doc.NumPage(); i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteByte('\n')
	}
	return b.String()
}

// docxParagraphs walks word/document.xml and returns the non-empty paragraphs.
func docxParagraphs(r io.ReaderAt, size int64) ([]string, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}

	var body io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body, err = f.Open()
			if err != nil {
				return nil, err
			}
			break
		}
	}
	if body == nil {
		return nil, zip.ErrFormat
	}
	defer body.Close()

	dec := xml.NewDecoder(body)
	var (
		paragraphs []string
		current    bytes.Buffer
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(current.String()); s != "" {
					paragraphs = append(paragraphs, s)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}
