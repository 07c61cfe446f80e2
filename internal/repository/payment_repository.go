package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

// PaymentRepository хранит записи о списанных платежах и реквизиты доставки.
type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreatePayment записывает успешно списанный платёж.
func (r *PaymentRepository) CreatePayment(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (id, gateway_ref, amount, payment_type, card_type, card_last4)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING captured_at
	`
	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.GatewayRef, p.Amount, p.PaymentType, p.CardType, p.CardLast4).
		Scan(&p.CapturedAt)
	if err != nil {
		return fmt.Errorf("payment repository: create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return common.GetByID[models.Payment](ctx, r.db, "payments", id,
		apperror.New(apperror.ErrCodeNotFound, "платёж не найден"))
}

// CreateDelivery записывает реквизиты доставки.
func (r *PaymentRepository) CreateDelivery(ctx context.Context, d *models.Delivery) error {
	query := `
		INSERT INTO deliveries (id, fee, status, first_name, last_name, contact_no, address, tracking_no)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		d.ID, d.Fee, d.Status, d.FirstName, d.LastName, d.ContactNo, d.Address, d.TrackingNo).
		Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("payment repository: create delivery: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetDelivery(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	return common.GetByID[models.Delivery](ctx, r.db, "deliveries", id,
		apperror.New(apperror.ErrCodeNotFound, "доставка не найдена"))
}

// SetTracking проставляет трек-номер, выданный службой доставки.
func (r *PaymentRepository) SetTracking(ctx context.Context, deliveryID uuid.UUID, trackingNo string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE deliveries SET tracking_no = $2 WHERE id = $1
	`, deliveryID, trackingNo)
	if err != nil {
		return fmt.Errorf("payment repository: set tracking: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("payment repository: set tracking rows: %w", err)
	}
	if affected == 0 {
		return apperror.New(apperror.ErrCodeNotFound, "доставка не найдена")
	}
	return nil
}
