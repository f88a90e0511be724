package rag

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	docx "github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
)

// Extract converts a document into a single flat string, dispatching on the
// declared format tag. It performs no chunking. An input that decodes to zero
// extractable characters fails with ErrEmptyDocument.
func Extract(doc Document) (string, error) {
	var (
		text string
		err  error
	)

	switch doc.Format {
	case FormatText:
		text, err = extractPlainText(doc.Data)
	case FormatJSON:
		text, err = extractJSON(doc.Data)
	case FormatPDF:
		text, err = extractPDF(doc.Data)
	case FormatDOCX:
		text, err = extractDOCX(doc.Data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(doc.Format))
	}
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

func extractPlainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: plain text is not valid UTF-8", ErrDecode)
	}
	return string(data), nil
}

// extractJSON parses the payload into a tree and concatenates every
// string-typed leaf depth-first, one per line. Numbers, booleans and nulls
// are skipped. Object keys are visited in sorted order so the output is
// deterministic regardless of map iteration.
func extractJSON(data []byte) (string, error) {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}

	var leaves []string
	collectStringLeaves(root, &leaves)
	return strings.Join(leaves, "\n"), nil
}

func collectStringLeaves(node any, out *[]string) {
	switch v := node.(type) {
	case string:
		*out = append(*out, v)
	case []any:
		for _, item := range v {
			collectStringLeaves(item, out)
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectStringLeaves(v[k], out)
		}
	}
}

// extractPDF pulls visible text page by page in document order. Decoding the
// binary layout is delegated to the pdf library; a file it cannot open is an
// unsupported-format failure, not a decode bug here.
func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", ErrUnsupportedFormat, err)
	}

	var builder strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: read pdf page %d: %v", ErrUnsupportedFormat, pageNum, err)
		}
		if content == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(content)
	}
	return builder.String(), nil
}

// extractDOCX walks the document body paragraph by paragraph.
func extractDOCX(data []byte) (string, error) {
	parsed, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open docx: %v", ErrUnsupportedFormat, err)
	}

	var lines []string
	for _, item := range parsed.Document.Body.Items {
		switch item.(type) {
		case *docx.Paragraph, *docx.Table:
			if text := strings.TrimSpace(fmt.Sprint(item)); text != "" {
				lines = append(lines, text)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
