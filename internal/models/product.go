package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы товара
const (
	ProductStatusActive    = "Active"
	ProductStatusInactive  = "Inactive"
	ProductStatusSuspended = "Suspended"
)

// Product описывает товар каталога. Каталог управляется внешней подсистемой,
// ядро транзакций изменяет только AvailableQty.
type Product struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	SellerID     uuid.UUID  `db:"seller_id" json:"seller_id"`
	Name         string     `db:"name" json:"name"`
	Price        float64    `db:"price" json:"price"`
	DiscPrice    *float64   `db:"disc_price" json:"disc_price,omitempty"`
	PromoActive  bool       `db:"promo_active" json:"promo_active"`
	PromoEndDate *time.Time `db:"promo_end_date" json:"promo_end_date,omitempty"`
	MOQ          int        `db:"moq" json:"moq"`
	AvailableQty int        `db:"available_qty" json:"available_qty"`
	Status       string     `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// SoldPrice возвращает цену продажи с учётом активной акции.
func (p *Product) SoldPrice(now time.Time) float64 {
	if p.PromoActive && p.DiscPrice != nil {
		if p.PromoEndDate == nil || !p.PromoEndDate.Before(truncateToDay(now)) {
			return *p.DiscPrice
		}
	}
	return p.Price
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
