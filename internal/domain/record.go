package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NormalizedRecord is the canonical unit of storage produced from one spreadsheet row.
type NormalizedRecord struct {
	ID          uuid.UUID    `json:"id"`
	UploadLogID uuid.UUID    `json:"upload_log_id"`
	Family      RecordFamily `json:"data_type"`
	Year        int          `json:"year"`
	Semester    *string      `json:"semester"`
	College     *string      `json:"college"`
	Department  *string      `json:"department"`
	Metadata    Metadata     `json:"metadata"`
	// RowNumber is the 1-indexed sheet row the record came from. It is not persisted.
	RowNumber int       `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Field looks a source column up on the record, resolving columns that were lifted out of
// metadata onto top-level fields. Null values are reported as absent.
func (r NormalizedRecord) Field(name string) (any, bool) {
	keys := r.Family.keys()
	if alias, ok := keys.aliases[name]; ok {
		name = alias
	}
	if v, ok := r.Metadata[name]; ok && !v.IsNull() {
		return v.Interface(), true
	}
	switch name {
	case "":
		return nil, false
	case keys.year:
		if r.Year == 0 {
			return nil, false
		}
		return float64(r.Year), true
	case keys.semester:
		return optionalText(r.Semester)
	case keys.college:
		return optionalText(r.College)
	case keys.department:
		return optionalText(r.Department)
	}
	return nil, false
}

// MetadataJSON encodes the metadata for storage.
func (r NormalizedRecord) MetadataJSON() ([]byte, error) {
	if r.Metadata == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Metadata)
}

func optionalText(s *string) (any, bool) {
	if s == nil || *s == "" {
		return nil, false
	}
	return *s, true
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// RecordFilter narrows the records handed to dashboard readers. Zero fields do not filter.
type RecordFilter struct {
	Family      RecordFamily
	Year        int
	College     string
	Department  string
	UploadLogID uuid.UUID
}

// FamilyStatistics is the per-family record count.
type FamilyStatistics struct {
	Family RecordFamily `json:"type"`
	Count  int64        `json:"count"`
}
