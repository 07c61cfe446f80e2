package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы спора
const (
	DisputeStatusOpen            = "Open"
	DisputeStatusInProgress      = "InProgress"
	DisputeStatusWaitingResponse = "WaitingResponse"
	DisputeStatusResolved        = "Resolved"
	DisputeStatusClosed          = "Closed"
)

// Приоритеты споров и жалоб
const (
	PriorityLow    = "Low"
	PriorityMedium = "Medium"
	PriorityHigh   = "High"
	PriorityUrgent = "Urgent"
)

// Типы сообщений в споре
const (
	MessageKindMessage   = "message"
	MessageKindSystem    = "system"
	MessageKindAdminNote = "admin_note"
)

// Dispute — двусторонняя переписка-спор. HandledBy заполняется только когда
// к спору подключается администратор.
type Dispute struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Title         string     `db:"title" json:"title"`
	Description   string     `db:"description" json:"description"`
	LodgedBy      uuid.UUID  `db:"lodged_by" json:"lodged_by"`
	LodgedAgainst uuid.UUID  `db:"lodged_against" json:"lodged_against"`
	HandledBy     *uuid.UUID `db:"handled_by" json:"handled_by,omitempty"`
	AwaitingUser  *uuid.UUID `db:"awaiting_user" json:"awaiting_user,omitempty"`
	Priority      string     `db:"priority" json:"priority"`
	Status        string     `db:"status" json:"status"`
	IsResolved    bool       `db:"is_resolved" json:"is_resolved"`
	LastSeq       int64      `db:"last_seq" json:"-"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt    *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// IsParticipant сообщает, является ли пользователь стороной или ведущим спора.
func (d *Dispute) IsParticipant(userID uuid.UUID) bool {
	if d.LodgedBy == userID || d.LodgedAgainst == userID {
		return true
	}
	return d.HandledBy != nil && *d.HandledBy == userID
}

// DisputeMessage — запись в журнале спора. Журнал только дополняется,
// Seq строго возрастает в пределах одного спора.
type DisputeMessage struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DisputeID uuid.UUID `db:"dispute_id" json:"dispute_id"`
	Seq       int64     `db:"seq" json:"seq"`
	SentBy    uuid.UUID `db:"sent_by" json:"sent_by"`
	Body      string    `db:"body" json:"body"`
	Kind      string    `db:"kind" json:"kind"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	SentAt    time.Time `db:"sent_at" json:"sent_at"`
}
