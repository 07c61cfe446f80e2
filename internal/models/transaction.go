package models

import (
	"time"

	"github.com/google/uuid"
)

// Состояния транзакции. Pending — единственное нетерминальное состояние.
const (
	TransactionStatePending         = "Pending"
	TransactionStateApproved        = "Approved"
	TransactionStateFailed          = "Failed"
	TransactionStatePaidButCollided = "PaidButCollided"
)

// Причины перевода транзакции в Failed.
const (
	FailReasonInsufficientStock = "InsufficientStock"
	FailReasonPaymentDeclined   = "PaymentDeclined"
	FailReasonTimeout           = "Timeout"
	FailReasonCancelled         = "Cancelled"
	FailReasonInternal          = "Internal"
)

// Статусы выплаты продавцу по позиции транзакции.
const (
	ClaimStatusInvalid   = "Invalid"
	ClaimStatusPending   = "Pending"
	ClaimStatusUnclaimed = "Unclaimed"
	ClaimStatusClaimed   = "Claimed"
)

// Transaction представляет покупку. После достижения терминального состояния
// запись неизменна, кроме привязки PaymentID и DeliveryID.
type Transaction struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	BuyerID    uuid.UUID  `db:"buyer_id" json:"buyer_id"`
	State      string     `db:"state" json:"state"`
	FailReason *string    `db:"fail_reason" json:"fail_reason,omitempty"`
	PaymentID  *uuid.UUID `db:"payment_id" json:"payment_id,omitempty"`
	DeliveryID *uuid.UUID `db:"delivery_id" json:"delivery_id,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// IsTerminal сообщает, достигла ли транзакция терминального состояния.
func (t *Transaction) IsTerminal() bool {
	return t.State != TransactionStatePending
}

// TransactionLine — одна позиция покупки: (transaction_id, product_id)
// составной ключ.
type TransactionLine struct {
	TransactionID uuid.UUID `db:"transaction_id" json:"transaction_id"`
	ProductID     uuid.UUID `db:"product_id" json:"product_id"`
	Quantity      int       `db:"quantity" json:"quantity"`
	SoldPrice     float64   `db:"sold_price" json:"sold_price"`
	ClaimStatus   string    `db:"claim_status" json:"claim_status"`
}

// LineRequest — запрошенная покупателем позиция при создании транзакции.
type LineRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// TotalAmount возвращает сумму по позициям. Должна совпадать с суммой
// авторизованного платежа.
func TotalAmount(lines []TransactionLine) float64 {
	var total float64
	for _, l := range lines {
		total += float64(l.Quantity) * l.SoldPrice
	}
	return total
}
