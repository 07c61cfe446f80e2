package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы жалобы
const (
	ReportStatusPending     = "Pending"
	ReportStatusUnderReview = "UnderReview"
	ReportStatusResolved    = "Resolved"
	ReportStatusClosed      = "Closed"
)

// Report — жалоба на спор. AdminConversationID устанавливается не более
// одного раза и после этого не перезаписывается; исходный спор при работе с
// жалобой не изменяется — он заморожен как доказательство.
type Report struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	ReportedDisputeID   uuid.UUID  `db:"reported_dispute_id" json:"reported_dispute_id"`
	ReportedBy          uuid.UUID  `db:"reported_by" json:"reported_by"`
	AssignedAdminID     uuid.UUID  `db:"assigned_admin_id" json:"assigned_admin_id"`
	AdminConversationID *uuid.UUID `db:"admin_conversation_id" json:"admin_conversation_id,omitempty"`
	Title               string     `db:"title" json:"title"`
	Description         string     `db:"description" json:"description"`
	Attachments         *string    `db:"attachments" json:"attachments,omitempty"`
	Priority            string     `db:"priority" json:"priority"`
	Status              string     `db:"status" json:"status"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt          *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// IsOpen сообщает, находится ли жалоба в работе.
func (r *Report) IsOpen() bool {
	return r.Status == ReportStatusPending || r.Status == ReportStatusUnderReview
}
