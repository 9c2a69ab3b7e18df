package validator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rpattn/unidata/internal/domain"
)

// Record is anything that can be looked up by source column name. Both raw rows and
// normalized records satisfy it, so the same rules apply before and after normalization.
type Record interface {
	Field(name string) (any, bool)
}

// Fields adapts a plain column mapping to Record.
type Fields map[string]any

// Field implements Record.
func (f Fields) Field(name string) (any, bool) {
	v, ok := f[name]
	if !ok || domain.IsBlank(v) {
		return nil, false
	}
	return v, true
}

// ValidationError represents a single rule violation
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`

	yearOutOfRange bool
	year           int
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	IsValid bool              `json:"is_valid"`
	Errors  []ValidationError `json:"errors"`
}

// RecordValidator applies the per-family semantic rules. It never mutates its input.
type RecordValidator struct {
	rules map[domain.RecordFamily]familyRules
}

type familyRules struct {
	required []string
	check    func(r Record, result *ValidationResult)
}

// NewRecordValidator creates a validator with the built-in family rules.
func NewRecordValidator() *RecordValidator {
	return &RecordValidator{rules: map[domain.RecordFamily]familyRules{
		domain.FamilyPublication: {
			required: []string{domain.ColPaperID, domain.ColPublicationDate, domain.ColCollege, domain.ColDepartment},
			check:    checkPublication,
		},
		domain.FamilyResearch: {
			required: []string{domain.ColExecutionID, domain.ColProjectNumber, domain.ColPrincipalInv, domain.ColAffiliation},
			check:    checkResearch,
		},
		domain.FamilyStudent: {
			required: []string{domain.ColStudentID, domain.ColName, domain.ColCollege, domain.ColDepartment, domain.ColAdmissionYear},
			check:    checkStudent,
		},
		domain.FamilyKPI: {
			required: []string{domain.ColEvaluationYear, domain.ColSemester, domain.ColCollege, domain.ColDepartment},
			check:    checkKPI,
		},
	}}
}

// Check collects every violation of the family's rules.
func (v *RecordValidator) Check(family domain.RecordFamily, record Record) ValidationResult {
	result := ValidationResult{IsValid: true, Errors: []ValidationError{}}

	rules, ok := v.rules[family]
	if !ok {
		result.add(ValidationError{Message: fmt.Sprintf("unknown record family %q", family)})
		return result
	}

	for _, field := range rules.required {
		if _, present := record.Field(field); !present {
			result.add(ValidationError{Field: field, Message: fmt.Sprintf("'%s' is empty", field)})
		}
	}
	rules.check(record, &result)
	return result
}

// Validate returns the first violation as a *domain.RecordValidationError, or nil.
// Year range violations unwrap to *domain.YearOutOfRangeError.
func (v *RecordValidator) Validate(family domain.RecordFamily, record Record, row int) error {
	result := v.Check(family, record)
	if result.IsValid {
		return nil
	}
	first := result.Errors[0]
	err := &domain.RecordValidationError{Row: row, Reason: first.Message}
	if first.yearOutOfRange {
		err.Err = &domain.YearOutOfRangeError{Row: row, Field: first.Field, Year: first.year}
	}
	return err
}

func (r *ValidationResult) add(err ValidationError) {
	r.IsValid = false
	r.Errors = append(r.Errors, err)
}

func checkPublication(r Record, result *ValidationResult) {
	if value, ok := r.Field(domain.ColImpactFactor); ok && !isFloat(value) {
		result.add(ValidationError{
			Field:   domain.ColImpactFactor,
			Message: fmt.Sprintf("'%s' must be a number", domain.ColImpactFactor),
			Value:   value,
		})
	}
}

func checkResearch(r Record, result *ValidationResult) {
	for _, field := range []string{domain.ColTotalBudget, domain.ColExecutionAmount} {
		value, ok := r.Field(field)
		if !ok {
			continue
		}
		amount, isInt := asInteger(value)
		switch {
		case !isInt:
			result.add(ValidationError{Field: field, Message: fmt.Sprintf("'%s' must be an integer", field), Value: value})
		case amount < 0:
			result.add(ValidationError{Field: field, Message: fmt.Sprintf("'%s' must be 0 or greater", field), Value: value})
		}
	}
}

func checkStudent(r Record, result *ValidationResult) {
	checkYear(r, domain.ColAdmissionYear, result)

	if value, ok := r.Field(domain.ColGrade); ok {
		grade, isInt := asInteger(value)
		switch {
		case !isInt:
			result.add(ValidationError{Field: domain.ColGrade, Message: fmt.Sprintf("'%s' must be a number", domain.ColGrade), Value: value})
		case grade < 0 || grade > 7:
			result.add(ValidationError{Field: domain.ColGrade, Message: fmt.Sprintf("'%s' must be within 0-7", domain.ColGrade), Value: value})
		}
	}
}

func checkKPI(r Record, result *ValidationResult) {
	checkYear(r, domain.ColEvaluationYear, result)
}

// checkYear validates an integral year within [domain.MinYear, domain.MaxYear]. A blank
// year is already reported by the required-field pass.
func checkYear(r Record, field string, result *ValidationResult) {
	value, ok := r.Field(field)
	if !ok {
		return
	}
	year, isInt := asInteger(value)
	if !isInt {
		result.add(ValidationError{Field: field, Message: fmt.Sprintf("'%s' must be a number", field), Value: value})
		return
	}
	if year < domain.MinYear || year > domain.MaxYear {
		result.add(ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("'%s' must be within %d-%d", field, domain.MinYear, domain.MaxYear),
			Value:          value,
			yearOutOfRange: true,
			year:           int(year),
		})
	}
}

func asInteger(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case float32:
		return asInteger(float64(v))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func isFloat(value any) bool {
	switch v := value.(type) {
	case float32, float64:
		return true
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case string:
		_, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return err == nil
	default:
		return false
	}
}
