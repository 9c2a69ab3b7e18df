package domain

import (
	"fmt"
	"strings"
)

// RecordFamily identifies which of the supported record categories a file holds.
type RecordFamily string

const (
	FamilyPublication RecordFamily = "publication"
	FamilyResearch    RecordFamily = "research"
	FamilyStudent     RecordFamily = "student"
	FamilyKPI         RecordFamily = "kpi"
)

// Source-locale column headers. The exports the institution produces are in Korean,
// so these strings must match the spreadsheets byte for byte.
const (
	ColPaperID          = "논문ID"
	ColPublicationDate  = "게재일"
	ColCollege          = "단과대학"
	ColDepartment       = "학과"
	ColPaperTitle       = "논문제목"
	ColLeadAuthor       = "주저자"
	ColCoAuthors        = "참여저자"
	ColJournalName      = "학술지명"
	ColJournalGrade     = "저널등급"
	ColImpactFactor     = "Impact Factor"
	ColProjectLinked    = "과제연계여부"
	ColExecutionID      = "집행ID"
	ColProjectNumber    = "과제번호"
	ColProjectName      = "과제명"
	ColPrincipalInv     = "연구책임자"
	ColAffiliation      = "소속학과"
	ColFundingAgency    = "지원기관"
	ColTotalBudget      = "총연구비"
	ColExecutionDate    = "집행일자"
	ColExecutionItem    = "집행항목"
	ColExecutionAmount  = "집행금액"
	ColStatus           = "상태"
	ColRemarks          = "비고"
	ColStudentID        = "학번"
	ColName             = "이름"
	ColGrade            = "학년"
	ColProgram          = "과정구분"
	ColEnrollment       = "학적상태"
	ColGender           = "성별"
	ColAdmissionYear    = "입학년도"
	ColAdvisor          = "지도교수"
	ColEmail            = "이메일"
	ColEvaluationYear   = "평가년도"
	ColSemester         = "학기"
	MetaImpactFactorKey = "Impact_Factor"
)

// Signature is the set of columns that identifies a family.
type Signature struct {
	Family  RecordFamily
	Columns []string
}

// Matches reports whether every signature column is present in columns.
func (s Signature) Matches(columns map[string]struct{}) bool {
	for _, col := range s.Columns {
		if _, ok := columns[col]; !ok {
			return false
		}
	}
	return true
}

// Signatures returns the detection signatures in priority order.
func Signatures() []Signature {
	return []Signature{
		{Family: FamilyPublication, Columns: []string{ColPaperID, ColPublicationDate, ColCollege, ColDepartment}},
		{Family: FamilyResearch, Columns: []string{ColExecutionID, ColProjectNumber, ColProjectName, ColPrincipalInv}},
		{Family: FamilyStudent, Columns: []string{ColStudentID, ColName, ColCollege, ColDepartment}},
		{Family: FamilyKPI, Columns: []string{ColEvaluationYear, ColSemester, ColCollege, ColDepartment}},
	}
}

// AllFamilies lists every family in a stable order.
func AllFamilies() []RecordFamily {
	return []RecordFamily{FamilyKPI, FamilyPublication, FamilyResearch, FamilyStudent}
}

// ParseRecordFamily converts a user supplied string into a family.
func ParseRecordFamily(raw string) (RecordFamily, error) {
	family := RecordFamily(strings.ToLower(strings.TrimSpace(raw)))
	if !family.Valid() {
		return "", fmt.Errorf("unknown record family %q", raw)
	}
	return family, nil
}

// Valid reports whether f is one of the supported families.
func (f RecordFamily) Valid() bool {
	switch f {
	case FamilyPublication, FamilyResearch, FamilyStudent, FamilyKPI:
		return true
	}
	return false
}

func (f RecordFamily) String() string { return string(f) }

// keyColumns maps the columns a family lifts out of metadata onto top-level record fields.
type keyColumns struct {
	year       string
	semester   string
	college    string
	department string
	aliases    map[string]string
}

func (f RecordFamily) keys() keyColumns {
	switch f {
	case FamilyPublication:
		return keyColumns{
			year: ColPublicationDate, college: ColCollege, department: ColDepartment,
			aliases: map[string]string{ColImpactFactor: MetaImpactFactorKey},
		}
	case FamilyResearch:
		return keyColumns{year: ColExecutionDate, department: ColAffiliation}
	case FamilyStudent:
		return keyColumns{year: ColAdmissionYear, college: ColCollege, department: ColDepartment}
	case FamilyKPI:
		return keyColumns{year: ColEvaluationYear, semester: ColSemester, college: ColCollege, department: ColDepartment}
	}
	return keyColumns{}
}
