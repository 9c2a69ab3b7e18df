package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizedRecordFieldResolvesKeyColumns(t *testing.T) {
	rec := NormalizedRecord{
		Family:     FamilyKPI,
		Year:       2024,
		Semester:   StringPtr("1학기"),
		College:    StringPtr("공과대학"),
		Department: StringPtr("컴퓨터공학과"),
		Metadata:   Metadata{"졸업률": Number(0.91)},
	}

	v, ok := rec.Field(ColEvaluationYear)
	assert.True(t, ok)
	assert.Equal(t, 2024.0, v)

	v, ok = rec.Field(ColSemester)
	assert.True(t, ok)
	assert.Equal(t, "1학기", v)

	v, ok = rec.Field("졸업률")
	assert.True(t, ok)
	assert.Equal(t, 0.91, v)

	_, ok = rec.Field("없는컬럼")
	assert.False(t, ok)
}

func TestNormalizedRecordFieldAliases(t *testing.T) {
	rec := NormalizedRecord{
		Family:   FamilyPublication,
		Metadata: Metadata{MetaImpactFactorKey: Number(3.2)},
	}
	v, ok := rec.Field(ColImpactFactor)
	assert.True(t, ok)
	assert.Equal(t, 3.2, v)
}

func TestRecordFamilyParsing(t *testing.T) {
	f, err := ParseRecordFamily(" KPI ")
	assert.NoError(t, err)
	assert.Equal(t, FamilyKPI, f)

	_, err = ParseRecordFamily("grades")
	assert.Error(t, err)
}

func TestErrorMessagesCarryRowContext(t *testing.T) {
	err := &DataParsingError{Row: 7, Field: ColStudentID, Err: &MissingFieldError{Row: 7, Field: ColStudentID}}
	assert.Equal(t, `data parsing failed: row 7: field "학번" is empty`, err.Error())

	var missing *MissingFieldError
	assert.True(t, errors.As(err, &missing))

	wrapped := &DataParsingError{Row: 3, Field: ColPublicationDate, Err: errors.New("unrecognized date \"soon\"")}
	assert.Equal(t, `data parsing failed: row 3, field "게재일": unrecognized date "soon"`, wrapped.Error())
}
