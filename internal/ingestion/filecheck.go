package ingestion

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/rpattn/unidata/internal/domain"
)

// DefaultMaxFileSize is 50 MiB.
const DefaultMaxFileSize int64 = 50 * 1024 * 1024

var allowedExtensions = []string{".xlsx", ".xls", ".csv"}

var allowedContentTypes = map[string]struct{}{
	mimeXLSX:          {},
	mimeXLS:           {},
	"text/csv":        {},
	"application/csv": {},
}

// checkFile enforces the file-level constraints before any byte is parsed.
func checkFile(filename string, size int64, maxSize int64) error {
	if strings.TrimSpace(filename) == "" {
		return &domain.FileValidationError{Reason: "filename is empty"}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	allowed := false
	for _, candidate := range allowedExtensions {
		if ext == candidate {
			allowed = true
			break
		}
	}
	if !allowed {
		return &domain.FileValidationError{Reason: fmt.Sprintf(
			"unsupported file extension %q (allowed: %s)", ext, strings.Join(allowedExtensions, ", "))}
	}

	if size <= 0 {
		return &domain.FileValidationError{Reason: "file is empty"}
	}
	if size > maxSize {
		return &domain.FileValidationError{Reason: fmt.Sprintf(
			"file size %d bytes exceeds the %d MiB limit", size, maxSize/(1024*1024))}
	}
	return nil
}

// knownContentType reports whether a client supplied content type is one of the
// spreadsheet types. Unknown hints are tolerated; the bytes are sniffed anyway.
func knownContentType(hint string) bool {
	if hint == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(hint)
	if err != nil {
		return false
	}
	_, ok := allowedContentTypes[mediaType]
	return ok
}
