// Package export renders a document's structural tree and data-object graph
// to standalone HTML, PDF or DOCX, with optional artifact upload to MinIO.
package export

import "errors"

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Request contains parameters for an export operation
type Request struct {
	DocumentID   string
	Format       Format
	IncludeGraph bool
	Upload       bool // push the artifact to the configured bucket
}

// Result contains the export output
type Result struct {
	Data      []byte
	Filename  string
	MimeType  string
	ObjectURL string // set when the artifact was uploaded
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
	// ErrUploaderNotConfigured indicates upload was requested without a bucket configured.
	ErrUploaderNotConfigured = errors.New("export uploader not configured")
)
