package notify

import "time"

// Event types pushed to subscribers.
const (
	EventCertificateIssued    = "certificate.issued"
	EventCertificateAnchored  = "certificate.anchored"
	EventCertificateBatched   = "certificate.batched"
	EventVerificationRecorded = "verification.recorded"
)

// Event is the wire payload broadcast to every connected subscriber.
type Event struct {
	Type          string    `json:"type"`
	CertificateID string    `json:"certificate_id,omitempty"`
	Fingerprint   string    `json:"fingerprint,omitempty"`
	Status        string    `json:"status,omitempty"`
	Receipt       string    `json:"receipt,omitempty"`
	At            time.Time `json:"at"`
}
