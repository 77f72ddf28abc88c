// Package intake turns untrusted free text from an external OCR stage into
// a candidate certificate field-set. It only locates labeled fields and
// normalizes dates; it never corrects recognition errors.
package intake

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"academia-veritas/registry-backend/internal/integrity"
)

var (
	studentNamePattern = regexp.MustCompile(`(?im)^\s*(?:student\s*name|candidate\s*name|name)\s*[:\-]\s*([^\n]+)`)
	rollNumberPattern  = regexp.MustCompile(`(?im)^\s*(?:roll\s*(?:no|number)\.?|registration\s*(?:no|number)\.?|enrolment\s*(?:no|number)\.?)\s*[:\-]\s*([A-Za-z0-9/\-]+)`)
	courseNamePattern  = regexp.MustCompile(`(?im)^\s*(?:course(?:\s*name)?|program(?:me)?|degree)\s*[:\-]\s*([^\n]+)`)
	gradePattern       = regexp.MustCompile(`(?im)^\s*(?:grade|class|division|cgpa|gpa)\s*[:\-]\s*([A-Za-z0-9.+\-]+)`)
	issueDatePattern   = regexp.MustCompile(`(?im)^\s*(?:date\s*of\s*issue|issue\s*date|issued\s*on|awarded\s*on)\s*[:\-]\s*([^\n]+)`)
)

// dateLayouts are the input formats accepted from scanned certificates.
// Day-first layouts come before month-first ones; regional certificates
// overwhelmingly print DD/MM/YYYY.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// ExtractError reports which labeled fields could not be located in the
// supplied text.
type ExtractError struct {
	Missing []string
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("could not extract fields: %s", strings.Join(e.Missing, ", "))
}

// ExtractFields locates the labeled certificate fields in text and returns
// them with the issue date normalized to ISO-8601. Missing labels yield an
// *ExtractError naming every absent field; an unparseable date yields
// integrity.ErrUnsupportedDate.
func ExtractFields(text string) (integrity.CertificateFields, error) {
	fields := integrity.CertificateFields{
		StudentName: firstMatch(studentNamePattern, text),
		RollNumber:  firstMatch(rollNumberPattern, text),
		CourseName:  firstMatch(courseNamePattern, text),
		Grade:       firstMatch(gradePattern, text),
		IssueDate:   firstMatch(issueDatePattern, text),
	}

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"student_name", fields.StudentName},
		{"roll_number", fields.RollNumber},
		{"course_name", fields.CourseName},
		{"grade", fields.Grade},
		{"issue_date", fields.IssueDate},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return integrity.CertificateFields{}, &ExtractError{Missing: missing}
	}

	date, err := NormalizeDate(fields.IssueDate)
	if err != nil {
		return integrity.CertificateFields{}, err
	}
	fields.IssueDate = date
	return fields, nil
}

// NormalizeDate converts a scanned date string to ISO-8601.
func NormalizeDate(raw string) (string, error) {
	cleaned := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(raw), "."))
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.Format(integrity.IssueDateLayout), nil
		}
	}
	return "", fmt.Errorf("%w: cannot normalize %q", integrity.ErrUnsupportedDate, raw)
}

func firstMatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}
