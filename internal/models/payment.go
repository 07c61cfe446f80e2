package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment создаётся только после успешного списания средств, то есть когда
// транзакция достигла Approved или PaidButCollided.
type Payment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	GatewayRef  string    `db:"gateway_ref" json:"gateway_ref"`
	Amount      float64   `db:"amount" json:"amount"`
	PaymentType *string   `db:"payment_type" json:"payment_type,omitempty"`
	CardType    *string   `db:"card_type" json:"card_type,omitempty"`
	CardLast4   *string   `db:"card_last4" json:"card_last4,omitempty"`
	CapturedAt  time.Time `db:"captured_at" json:"captured_at"`
}

// Статусы доставки.
const (
	DeliveryStatusProcessing = "Processing"
	DeliveryStatusShipped    = "Shipped"
	DeliveryStatusDelivered  = "Delivered"
)

// Delivery хранит реквизиты доставки, привязанные к одобренной транзакции.
type Delivery struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Fee        float64   `db:"fee" json:"fee"`
	Status     string    `db:"status" json:"status"`
	FirstName  string    `db:"first_name" json:"first_name"`
	LastName   string    `db:"last_name" json:"last_name"`
	ContactNo  string    `db:"contact_no" json:"contact_no"`
	Address    string    `db:"address" json:"address"`
	TrackingNo *string   `db:"tracking_no" json:"tracking_no,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// DeliveryRequest — реквизиты доставки, передаваемые при создании покупки.
type DeliveryRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name"`
	ContactNo string `json:"contact_no" binding:"required"`
	Address   string `json:"address" binding:"required"`
}
