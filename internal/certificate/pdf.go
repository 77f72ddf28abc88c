package certificate

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
)

// RenderPDF produces the printable certificate document for a row owned by
// the institution. The integrity block at the bottom carries everything a
// relying party needs to re-verify the document against the registry.
func (s *service) RenderPDF(ctx context.Context, institutionID, id uuid.UUID) ([]byte, error) {
	cert, err := s.Get(ctx, institutionID, id)
	if err != nil {
		return nil, err
	}
	return s.renderCertificatePDF(ctx, cert)
}

func (s *service) renderCertificatePDF(ctx context.Context, cert *Certificate) ([]byte, error) {
	institutionName := "Registered Institution"
	if s.institutions != nil {
		inst, err := s.institutions.GetInstitutionByID(ctx, cert.InstitutionID)
		if err == nil && inst != nil {
			institutionName = inst.Name
		}
	}
	return renderPDF(cert, institutionName)
}

func renderPDF(cert *Certificate, institutionName string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	pageWidth, _ := pdf.GetPageSize()

	// Decorative border
	pdf.SetDrawColor(30, 60, 114)
	pdf.SetLineWidth(1)
	pdf.Rect(10, 10, pageWidth-20, 277, "D")
	pdf.SetLineWidth(0.3)
	pdf.Rect(12, 12, pageWidth-24, 273, "D")

	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(30, 60, 114)
	pdf.CellFormat(0, 14, institutionName, "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 12)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 8, "hereby certifies that", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 26)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 16, cert.StudentName, "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 12)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 8, fmt.Sprintf("Roll Number: %s", cert.RollNumber), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.CellFormat(0, 8, "has successfully completed", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 18)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 12, cert.CourseName, "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 12)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 8, fmt.Sprintf("with grade %s, issued on %s", cert.Grade, cert.IssueDate), "", 1, "C", false, 0, "")
	pdf.Ln(16)

	// Integrity block: the machine-verifiable identity of this document.
	pdf.SetDrawColor(200, 200, 200)
	pdf.SetFillColor(248, 248, 248)
	x, y := pdf.GetX(), pdf.GetY()
	pdf.Rect(x, y, pageWidth-40, 56, "FD")
	pdf.SetXY(x+4, y+4)

	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(30, 60, 114)
	pdf.CellFormat(0, 6, "Verification Details", "", 1, "L", false, 0, "")
	pdf.SetX(x + 4)

	integrityRow := func(label, value string) {
		pdf.SetFont("Arial", "B", 8)
		pdf.SetTextColor(80, 80, 80)
		pdf.CellFormat(34, 5, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Courier", "", 8)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(0, 5, value, "", 1, "L", false, 0, "")
		pdf.SetX(x + 4)
	}

	integrityRow("Certificate ID", cert.ID.String())
	integrityRow("Fingerprint", cert.Fingerprint)
	integrityRow("Signature", cert.Signature)
	integrityRow("Ledger Status", string(cert.AnchorStatus))
	if cert.AnchorReceipt != "" {
		integrityRow("Ledger Receipt", cert.AnchorReceipt)
	}
	if cert.AnchoredAt != nil {
		integrityRow("Anchored At", cert.AnchoredAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}

	pdf.SetY(260)
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(0, 5, "Authenticity of this document can be confirmed through the Academia Veritas verification portal.", "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}
