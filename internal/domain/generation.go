// Package domain defines the persistence models for the generation backend.
// These types are mapped with GORM and form the core data layer shared by
// the repository and service layers.
package domain

import "time"

// Generation status values. A record is created as pending and is mutated
// exactly once, to succeeded or failed. Terminal states are final.
const (
	GenerationPending   = "pending"
	GenerationSucceeded = "succeeded"
	GenerationFailed    = "failed"
)

// Failure reasons recorded on terminal failed generations.
const (
	ReasonProviderRejected    = "provider_rejected"
	ReasonProviderUnavailable = "provider_unavailable"
)

// GenerationRecord is the persisted outcome of one generation request.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - ClientID: optional caller-supplied correlation key; unique when set so
//     that a retried request resolves to the original record instead of
//     duplicating provider work.
//   - Prompt: the full prompt text as submitted (after trimming).
//   - Label: short display title derived from the prompt.
//   - Temperature / MaxTokens: optional sampling parameters, nil when the
//     caller did not supply them.
//   - Status: pending | succeeded | failed (enforced by DB constraint).
//   - Text: generated text; non-nil iff Status is succeeded.
//   - FailureReason: provider_rejected | provider_unavailable; non-nil iff
//     Status is failed.
//   - CreatedAt: set when the request is accepted.
//   - CompletedAt: set by the single terminal mutation.
type GenerationRecord struct {
	ID            string     `json:"id"                       gorm:"type:char(36);primaryKey"`
	ClientID      *string    `json:"client_id,omitempty"      gorm:"type:varchar(200);uniqueIndex:ux_generations_client_id"`
	Prompt        string     `json:"prompt"                   gorm:"type:text;not null"`
	Label         string     `json:"label"                    gorm:"type:varchar(80);not null;default:''"`
	Temperature   *float64   `json:"temperature,omitempty"`
	MaxTokens     *int       `json:"max_tokens,omitempty"`
	Status        string     `json:"status"                   gorm:"type:varchar(16);not null;index;check:status IN ('pending','succeeded','failed')"`
	Text          *string    `json:"text,omitempty"           gorm:"type:text"`
	FailureReason *string    `json:"failure_reason,omitempty" gorm:"type:varchar(32)"`
	CreatedAt     time.Time  `json:"created_at"               gorm:"index"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the database table name for GenerationRecord.
func (GenerationRecord) TableName() string { return "generations" }

// Terminal reports whether the record has reached a final status.
func (g *GenerationRecord) Terminal() bool {
	return g.Status == GenerationSucceeded || g.Status == GenerationFailed
}

// Consistent reports whether the text/status pairing honors the model
// invariant: text is non-nil iff the generation succeeded, and a failure
// reason is present iff it failed.
func (g *GenerationRecord) Consistent() bool {
	switch g.Status {
	case GenerationSucceeded:
		return g.Text != nil && g.FailureReason == nil
	case GenerationFailed:
		return g.Text == nil && g.FailureReason != nil
	case GenerationPending:
		return g.Text == nil && g.FailureReason == nil && g.CompletedAt == nil
	default:
		return false
	}
}
