package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/unidata/internal/domain"
)

func TestDetectEachFamily(t *testing.T) {
	detector := NewSignatureDetector()

	cases := map[domain.RecordFamily][]string{
		domain.FamilyPublication: {"논문제목", "논문ID", "게재일", "단과대학", "학과"},
		domain.FamilyResearch:    {"집행ID", "과제번호", "과제명", "연구책임자", "소속학과", "집행일자"},
		domain.FamilyStudent:     {"학번", "이름", "단과대학", "학과", "입학년도"},
		domain.FamilyKPI:         {"평가년도", "학기", "단과대학", "학과", "취업률"},
	}
	for want, columns := range cases {
		got, err := detector.Detect(columns)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDetectPriorityOrder(t *testing.T) {
	columns := []string{"평가년도", "학기", "학번", "이름", "단과대학", "학과"}

	got, err := NewSignatureDetector().Detect(columns)
	require.NoError(t, err)
	assert.Equal(t, domain.FamilyStudent, got)
}

func TestDetectUnrecognized(t *testing.T) {
	columns := []string{"논문ID", "단과대학", "학과"}

	_, err := NewSignatureDetector().Detect(columns)
	var unrecognized *domain.UnrecognizedFormatError
	require.ErrorAs(t, err, &unrecognized)
	assert.Equal(t, columns, unrecognized.Columns)
	assert.Len(t, unrecognized.Supported, 4)
	assert.Contains(t, err.Error(), "논문ID, 단과대학, 학과")
}
