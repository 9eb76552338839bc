// internal/domain/link/dto.go
package link

import "time"

// RequestLinkRequest starts the linking workflow against another owner.
type RequestLinkRequest struct {
	LinkedOwnerID string `json:"linked_owner_id" binding:"required"`
}

// ConsentInput is one consent collected during link acceptance.
type ConsentInput struct {
	Type    string `json:"type" binding:"required"`
	Country string `json:"country" binding:"required"`
	Scope   string `json:"scope"`
}

// AcceptLinkRequest carries the linked party's acceptance: password
// re-verification plus the consents to record.
type AcceptLinkRequest struct {
	LinkID   string         `json:"link_id" binding:"required"`
	Password string         `json:"password" binding:"required"`
	Consents []ConsentInput `json:"consents"`
}

// LinkedAccount is the listing projection of a link from one owner's side.
type LinkedAccount struct {
	LinkID      string     `json:"link_id"`
	OwnerID     string     `json:"owner_id"`
	MaskedEmail string     `json:"masked_email"`
	ServiceID   string     `json:"service_id"`
	Status      Status     `json:"status"`
	LinkedAt    *time.Time `json:"linked_at,omitempty"`
}

// Candidate is a discovery entry: another owner holding the same verified
// email. The email is partially redacted; the full address never leaves the
// listing endpoint.
type Candidate struct {
	OwnerID     string `json:"owner_id"`
	MaskedEmail string `json:"masked_email"`
	Mode        string `json:"mode"`
}
