package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a requested upload log does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is matched by TransitionError.
	ErrInvalidTransition = errors.New("invalid upload log transition")
)

// FileValidationError reports a file-level constraint violation (size, extension, emptiness).
type FileValidationError struct {
	Reason string
}

func (e *FileValidationError) Error() string { return "file validation failed: " + e.Reason }

// UnrecognizedFormatError is returned when no family signature matches the header.
type UnrecognizedFormatError struct {
	Columns   []string
	Supported []Signature
}

func (e *UnrecognizedFormatError) Error() string {
	supported := make([]string, 0, len(e.Supported))
	for _, sig := range e.Supported {
		supported = append(supported, fmt.Sprintf("%s[%s]", sig.Family, strings.Join(sig.Columns, ", ")))
	}
	return fmt.Sprintf("unrecognized file format: columns [%s]; supported formats: %s",
		strings.Join(e.Columns, ", "), strings.Join(supported, "; "))
}

// DataParsingError wraps anything that went wrong turning bytes into normalized records.
// Row and Field are zero when the failure is not attributable to a cell.
type DataParsingError struct {
	Row   int
	Field string
	Err   error
}

func (e *DataParsingError) Error() string {
	var b strings.Builder
	b.WriteString("data parsing failed")
	if e.Row > 0 && !hasRowContext(e.Err) {
		fmt.Fprintf(&b, ": row %d", e.Row)
		if e.Field != "" {
			fmt.Fprintf(&b, ", field %q", e.Field)
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DataParsingError) Unwrap() error { return e.Err }

// MissingFieldError is returned when a required cell is blank.
type MissingFieldError struct {
	Row   int
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("row %d: field %q is empty", e.Row, e.Field)
}

// YearOutOfRangeError is returned when a year falls outside [MinYear, MaxYear].
type YearOutOfRangeError struct {
	Row   int
	Field string
	Year  int
}

func (e *YearOutOfRangeError) Error() string {
	return fmt.Sprintf("row %d: field %q must be within %d-%d, got %d", e.Row, e.Field, MinYear, MaxYear, e.Year)
}

// RecordValidationError is the semantic validator's failure. Err may hold a more specific cause.
type RecordValidationError struct {
	Row    int
	Reason string
	Err    error
}

func (e *RecordValidationError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

func (e *RecordValidationError) Unwrap() error { return e.Err }

// IngestionFailedError is the single error an ingestion attempt surfaces to its caller.
type IngestionFailedError struct {
	UploadLogID uuid.UUID
	Err         error
}

func (e *IngestionFailedError) Error() string { return e.Err.Error() }

func (e *IngestionFailedError) Unwrap() error { return e.Err }

// TransitionError reports an attempt to move an upload log out of a terminal state.
type TransitionError struct {
	LogID uuid.UUID
	From  UploadStatus
	To    UploadStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("upload log %s cannot move from %s to %s", e.LogID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// Year bounds shared by normalizers and the validator.
const (
	MinYear = 1900
	MaxYear = 2100
)

func hasRowContext(err error) bool {
	var missing *MissingFieldError
	var year *YearOutOfRangeError
	var invalid *RecordValidationError
	return errors.As(err, &missing) || errors.As(err, &year) || errors.As(err, &invalid)
}
