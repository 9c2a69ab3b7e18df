package ingestion

import (
	"github.com/rpattn/unidata/internal/domain"
)

// Detector classifies a file by its header.
type Detector interface {
	Detect(columns []string) (domain.RecordFamily, error)
}

// SignatureDetector returns the first family, in priority order, whose required columns
// are all present.
type SignatureDetector struct {
	signatures []domain.Signature
}

// NewSignatureDetector creates a detector over the built-in family signatures.
func NewSignatureDetector() *SignatureDetector {
	return &SignatureDetector{signatures: domain.Signatures()}
}

// Detect implements Detector.
func (d *SignatureDetector) Detect(columns []string) (domain.RecordFamily, error) {
	present := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		present[col] = struct{}{}
	}
	for _, sig := range d.signatures {
		if sig.Matches(present) {
			return sig.Family, nil
		}
	}
	observed := make([]string, len(columns))
	copy(observed, columns)
	return "", &domain.UnrecognizedFormatError{Columns: observed, Supported: d.signatures}
}
