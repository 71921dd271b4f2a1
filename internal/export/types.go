// Package export renders content items as standalone HTML, PDF, or DOCX
// downloads.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Page holds the content item fields rendered into the export template.
type Page struct {
	Topic         string
	BodyHTML      string
	Published     bool
	DatePublished *time.Time
	UpdatedAt     time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
	// ErrUnsupportedFormat indicates an unknown export format was requested.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)
