package rag

import (
	"path/filepath"
	"strings"
)

// Format identifies the declared encoding of an uploaded knowledge document.
// The set is closed: supporting a new format means adding a constant here and
// a branch in Extract, never sniffing bytes at runtime.
type Format string

const (
	FormatText Format = "txt"
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Document is a named byte payload handed to ingestion. It exists only for
// the duration of one Ingest call; the raw bytes are never persisted.
type Document struct {
	Name   string
	Format Format
	Data   []byte
}

// FormatFromFilename maps a file extension to its declared format.
// The boolean is false for anything outside the supported set.
func FormatFromFilename(name string) (Format, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "txt":
		return FormatText, true
	case "json":
		return FormatJSON, true
	case "pdf":
		return FormatPDF, true
	case "docx":
		return FormatDOCX, true
	default:
		return "", false
	}
}
