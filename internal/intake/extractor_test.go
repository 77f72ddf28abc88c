package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"academia-veritas/registry-backend/internal/integrity"
)

const scannedCertificate = `
	ACADEMIA VERITAS UNIVERSITY

	This is to certify that

	Student Name: Jane Doe
	Roll Number: R-98765
	Course Name: B.Tech Computer Science
	Grade: A+
	Date of Issue: 15/10/2025

	has satisfied all requirements of the program.
`

func TestExtractFieldsFromScannedText(t *testing.T) {
	fields, err := ExtractFields(scannedCertificate)
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe", fields.StudentName)
	assert.Equal(t, "R-98765", fields.RollNumber)
	assert.Equal(t, "B.Tech Computer Science", fields.CourseName)
	assert.Equal(t, "A+", fields.Grade)
	assert.Equal(t, "2025-10-15", fields.IssueDate)
}

func TestExtractFieldsLabelVariants(t *testing.T) {
	text := `
		Candidate Name - John Smith
		Registration No - REG/2024/001
		Degree - Master of Science
		CGPA - 9.2
		Issued On - January 5, 2024
	`
	fields, err := ExtractFields(text)
	require.NoError(t, err)

	assert.Equal(t, "John Smith", fields.StudentName)
	assert.Equal(t, "REG/2024/001", fields.RollNumber)
	assert.Equal(t, "Master of Science", fields.CourseName)
	assert.Equal(t, "9.2", fields.Grade)
	assert.Equal(t, "2024-01-05", fields.IssueDate)
}

func TestExtractFieldsDoesNotConfuseCourseNameWithStudentName(t *testing.T) {
	text := `
		Course Name: B.Tech CS
		Name: Jane Doe
		Roll No: R-1
		Grade: A
		Issue Date: 2025-10-15
	`
	fields, err := ExtractFields(text)
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe", fields.StudentName)
	assert.Equal(t, "B.Tech CS", fields.CourseName)
}

func TestExtractFieldsReportsAllMissing(t *testing.T) {
	_, err := ExtractFields("Completely unrelated scan output")

	var extractErr *ExtractError
	require.ErrorAs(t, err, &extractErr)
	assert.ElementsMatch(t,
		[]string{"student_name", "roll_number", "course_name", "grade", "issue_date"},
		extractErr.Missing)
}

func TestExtractFieldsReportsPartialMissing(t *testing.T) {
	text := `
		Name: Jane Doe
		Grade: A
	`
	_, err := ExtractFields(text)

	var extractErr *ExtractError
	require.ErrorAs(t, err, &extractErr)
	assert.ElementsMatch(t, []string{"roll_number", "course_name", "issue_date"}, extractErr.Missing)
}

func TestNormalizeDateFormats(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2025-10-15", "2025-10-15"},
		{"15/10/2025", "2025-10-15"},
		{"15-10-2025", "2025-10-15"},
		{"15.10.2025", "2025-10-15"},
		{"October 15, 2025", "2025-10-15"},
		{"Oct 15, 2025", "2025-10-15"},
		{"15 October 2025", "2025-10-15"},
		{"15 Oct 2025", "2025-10-15"},
		{" 15/10/2025. ", "2025-10-15"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := NormalizeDate(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeDateRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "sometime in 2025", "99/99/9999"} {
		_, err := NormalizeDate(in)
		assert.ErrorIs(t, err, integrity.ErrUnsupportedDate)
	}
}
