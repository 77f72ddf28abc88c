package certificate

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"academia-veritas/registry-backend/internal/integrity"
)

// AnchorStatus tracks where a certificate stands relative to the ledger.
type AnchorStatus string

const (
	// AnchorPending: stored locally, no confirmed ledger entry yet.
	AnchorPending AnchorStatus = "pending"
	// AnchorAnchored: the certificate's own fingerprint is on the ledger.
	AnchorAnchored AnchorStatus = "anchored"
	// AnchorBatched: covered by an anchored batch root.
	AnchorBatched AnchorStatus = "batched"
)

// Certificate is the persisted registry row. The integrity fields
// (fingerprint, salt, signature) are stored verbatim as the engine returned
// them and never recomputed in place.
type Certificate struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	InstitutionID uuid.UUID      `gorm:"type:uuid;not null;index" json:"institution_id"`
	StudentName   string         `gorm:"not null" json:"student_name"`
	RollNumber    string         `gorm:"not null" json:"roll_number"`
	CourseName    string         `gorm:"not null" json:"course_name"`
	Grade         string         `gorm:"not null" json:"grade"`
	IssueDate     string         `gorm:"not null" json:"issue_date"`
	Fingerprint   string         `gorm:"uniqueIndex;not null" json:"fingerprint"`
	Salt          string         `gorm:"not null" json:"salt"`
	Signature     string         `gorm:"not null" json:"signature"`
	AnchorReceipt string         `json:"anchor_receipt"`
	AnchorStatus  AnchorStatus   `gorm:"not null;default:'pending'" json:"anchor_status"`
	AnchorDetail  datatypes.JSON `gorm:"type:jsonb" json:"anchor_detail,omitempty"`
	AnchoredAt    *time.Time     `json:"anchored_at,omitempty"`
	ArchiveKey    string         `json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Fields returns the engine view of the stored row.
func (c *Certificate) Fields() integrity.CertificateFields {
	return integrity.CertificateFields{
		StudentName: c.StudentName,
		RollNumber:  c.RollNumber,
		CourseName:  c.CourseName,
		Grade:       c.Grade,
		IssueDate:   c.IssueDate,
	}
}

type IssueRequest struct {
	StudentName string `json:"student_name" binding:"required"`
	RollNumber  string `json:"roll_number" binding:"required"`
	CourseName  string `json:"course_name" binding:"required"`
	Grade       string `json:"grade" binding:"required"`
	IssueDate   string `json:"issue_date" binding:"required"`
}

// IssueResult is what the issuance pipeline hands back to the transport
// layer. AnchorWarning is set when the ledger write did not confirm and the
// row was stored pending.
type IssueResult struct {
	Certificate   *Certificate `json:"certificate"`
	AnchorWarning string       `json:"anchor_warning,omitempty"`
}

// Page is the pagination envelope for registry listings.
type Page struct {
	Certificates []Certificate `json:"certificates"`
	CurrentPage  int           `json:"current_page"`
	TotalPages   int           `json:"total_pages"`
	TotalCount   int64         `json:"total_count"`
	Limit        int           `json:"limit"`
	HasNext      bool          `json:"has_next"`
	HasPrev      bool          `json:"has_prev"`
}

// BatchAnchorResult reports one batch-anchoring run: the Merkle root over
// the batch, the ledger receipt for the root, and how many rows it covers.
type BatchAnchorResult struct {
	Root     string `json:"root"`
	Receipt  string `json:"receipt"`
	Count    int    `json:"count"`
	Batched  bool   `json:"batched"`
	Existing bool   `json:"existing,omitempty"`
}

// anchorDetail is what gets serialized into the AnchorDetail jsonb column.
type anchorDetail struct {
	TxHash    string `json:"tx_hash,omitempty"`
	Ledger    int32  `json:"ledger,omitempty"`
	BatchRoot string `json:"batch_root,omitempty"`
	Note      string `json:"note,omitempty"`
}
