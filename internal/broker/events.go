package broker

import (
	"time"

	"github.com/google/uuid"
)

// Типы публикуемых событий жизненного цикла транзакции.
const (
	EventTransactionApproved = "transaction.approved"
	EventTransactionFailed   = "transaction.failed"
	EventTransactionCollided = "transaction.collided"
)

// TransactionEvent — событие, публикуемое после достижения транзакцией
// терминального состояния. Collided публикуется отдельно: такие транзакции
// требуют ручного вмешательства оператора.
type TransactionEvent struct {
	EventType     string    `json:"event_type"`
	TransactionID uuid.UUID `json:"transaction_id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	Amount        float64   `json:"amount,omitempty"`
	FailReason    string    `json:"fail_reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
