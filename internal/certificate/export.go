package certificate

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Certificates"

var exportColumns = []string{
	"Certificate ID", "Student Name", "Roll Number", "Course Name", "Grade",
	"Issue Date", "Fingerprint", "Signature", "Anchor Status", "Anchor Receipt",
	"Anchored At", "Issued At",
}

func exportRow(cert Certificate) []string {
	anchoredAt := ""
	if cert.AnchoredAt != nil {
		anchoredAt = cert.AnchoredAt.UTC().Format(time.RFC3339)
	}
	return []string{
		cert.ID.String(), cert.StudentName, cert.RollNumber, cert.CourseName,
		cert.Grade, cert.IssueDate, cert.Fingerprint, cert.Signature,
		string(cert.AnchorStatus), cert.AnchorReceipt, anchoredAt,
		cert.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ExportWorkbook renders the institution's full registry as an XLSX
// workbook, one certificate per row including its integrity columns.
func (s *service) ExportWorkbook(ctx context.Context, institutionID uuid.UUID) ([]byte, error) {
	certs, err := s.repo.ListAllByInstitution(ctx, institutionID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName("Sheet1", exportSheet)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1E3C72"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, col := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, col)
		f.SetCellStyle(exportSheet, cell, cell, headerStyle)
	}
	f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	for rowIdx, cert := range certs {
		rowNum := rowIdx + 2
		for colIdx, val := range exportRow(cert) {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowNum)
			if err := f.SetCellValue(exportSheet, cell, val); err != nil {
				return nil, fmt.Errorf("failed to set cell value: %w", err)
			}
		}
	}

	if len(certs) > 0 {
		lastCol, _ := excelize.CoordinatesToCellName(len(exportColumns), 1)
		f.AutoFilter(exportSheet, "A1:"+lastCol, nil)
	}

	// Wide columns for the hex and base64 integrity values.
	f.SetColWidth(exportSheet, "A", "A", 38)
	f.SetColWidth(exportSheet, "B", "F", 20)
	f.SetColWidth(exportSheet, "G", "H", 50)
	f.SetColWidth(exportSheet, "I", "L", 22)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportCSV renders the same registry rows as the workbook export in plain
// CSV for downstream tooling.
func (s *service) ExportCSV(ctx context.Context, institutionID uuid.UUID) ([]byte, error) {
	certs, err := s.repo.ListAllByInstitution(ctx, institutionID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportColumns); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	for _, cert := range certs {
		if err := w.Write(exportRow(cert)); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush export: %w", err)
	}
	return buf.Bytes(), nil
}
