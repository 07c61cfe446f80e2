package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

// TransactionRepository хранит транзакции и их позиции. Все переходы
// состояния выполняются условными UPDATE: проигравший в гонке получает
// ноль затронутых строк и не выполняет побочных эффектов.
type TransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create записывает транзакцию вместе с позициями в одной транзакции БД.
func (r *TransactionRepository) Create(ctx context.Context, t *models.Transaction, lines []models.TransactionLine) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO transactions (id, buyer_id, state)
			VALUES ($1, $2, $3)
			RETURNING created_at
		`
		if err := tx.QueryRowContext(ctx, query, t.ID, t.BuyerID, t.State).Scan(&t.CreatedAt); err != nil {
			return fmt.Errorf("transaction repository: create: %w", err)
		}

		for _, l := range lines {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO transaction_lines (transaction_id, product_id, quantity, sold_price, claim_status)
				VALUES ($1, $2, $3, $4, $5)
			`, l.TransactionID, l.ProductID, l.Quantity, l.SoldPrice, l.ClaimStatus)
			if err != nil {
				return fmt.Errorf("transaction repository: create line: %w", err)
			}
		}
		return nil
	})
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return common.GetByID[models.Transaction](ctx, r.db, "transactions", id, apperror.ErrTransactionNotFound)
}

// GetLines возвращает позиции транзакции в порядке возрастания product_id —
// в том же порядке, в котором резервировались остатки.
func (r *TransactionRepository) GetLines(ctx context.Context, transactionID uuid.UUID) ([]models.TransactionLine, error) {
	var lines []models.TransactionLine
	err := r.db.SelectContext(ctx, &lines, `
		SELECT * FROM transaction_lines
		WHERE transaction_id = $1
		ORDER BY product_id ASC
	`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("transaction repository: get lines: %w", err)
	}
	return lines, nil
}

// PendingForBuyer возвращает незавершённую транзакцию покупателя, если она есть.
func (r *TransactionRepository) PendingForBuyer(ctx context.Context, buyerID uuid.UUID) (*models.Transaction, error) {
	var t models.Transaction
	err := r.db.GetContext(ctx, &t, `
		SELECT * FROM transactions
		WHERE buyer_id = $1 AND state = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, buyerID, models.TransactionStatePending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transaction repository: pending for buyer: %w", err)
	}
	return &t, nil
}

// ListByBuyer возвращает историю покупок, новые первыми.
func (r *TransactionRepository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Transaction, error) {
	var items []models.Transaction
	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM transactions
		WHERE buyer_id = $1
		ORDER BY created_at DESC
	`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("transaction repository: list by buyer: %w", err)
	}
	return items, nil
}

// MarkState переводит транзакцию из Pending в state. Возвращает true, если
// именно этот вызов выполнил переход. Параллельный конкурент (свипер,
// отмена, вебхук) получит false и обязан ничего больше не делать.
func (r *TransactionRepository) MarkState(ctx context.Context, id uuid.UUID, state string, failReason *string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET state = $2, fail_reason = $3
		WHERE id = $1 AND state = $4
	`, id, state, failReason, models.TransactionStatePending)
	if err != nil {
		return false, fmt.Errorf("transaction repository: mark state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transaction repository: mark state rows: %w", err)
	}
	return affected == 1, nil
}

// MarkCollided переводит транзакцию в PaidButCollided. Допускается переход
// и из Pending, и из Failed: деньги уже списаны, а конкурент мог успеть
// провалить транзакцию до прихода подтверждения платежа.
func (r *TransactionRepository) MarkCollided(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET state = $2
		WHERE id = $1 AND state IN ($3, $4)
	`, id, models.TransactionStatePaidButCollided,
		models.TransactionStatePending, models.TransactionStateFailed)
	if err != nil {
		return false, fmt.Errorf("transaction repository: mark collided: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transaction repository: mark collided rows: %w", err)
	}
	return affected == 1, nil
}

// AttachPayment привязывает к транзакции запись о платеже.
func (r *TransactionRepository) AttachPayment(ctx context.Context, id, paymentID uuid.UUID) error {
	return r.attach(ctx, id, "payment_id", paymentID)
}

// AttachDelivery привязывает к транзакции запись о доставке.
func (r *TransactionRepository) AttachDelivery(ctx context.Context, id, deliveryID uuid.UUID) error {
	return r.attach(ctx, id, "delivery_id", deliveryID)
}

func (r *TransactionRepository) attach(ctx context.Context, id uuid.UUID, column string, ref uuid.UUID) error {
	query := fmt.Sprintf("UPDATE transactions SET %s = $2 WHERE id = $1", column)
	res, err := r.db.ExecContext(ctx, query, id, ref)
	if err != nil {
		return fmt.Errorf("transaction repository: attach %s: %w", column, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transaction repository: attach %s rows: %w", column, err)
	}
	if affected == 0 {
		return apperror.ErrTransactionNotFound
	}
	return nil
}

// SetLinesClaim выставляет статус выплаты всем позициям транзакции.
func (r *TransactionRepository) SetLinesClaim(ctx context.Context, transactionID uuid.UUID, status string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE transaction_lines
		SET claim_status = $2
		WHERE transaction_id = $1
	`, transactionID, status)
	if err != nil {
		return fmt.Errorf("transaction repository: set lines claim: %w", err)
	}
	return nil
}

// UpdateLineClaim переводит статус выплаты конкретной позиции из from в to.
// Нулевое число затронутых строк означает, что позиция не существует либо
// уже не находится в ожидаемом статусе.
func (r *TransactionRepository) UpdateLineClaim(ctx context.Context, transactionID, productID uuid.UUID, from, to string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transaction_lines
		SET claim_status = $4
		WHERE transaction_id = $1 AND product_id = $2 AND claim_status = $3
	`, transactionID, productID, from, to)
	if err != nil {
		return fmt.Errorf("transaction repository: update line claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transaction repository: update line claim rows: %w", err)
	}
	if affected == 0 {
		return apperror.ErrInvalidStateTransition
	}
	return nil
}

// ListExpiredPending возвращает Pending транзакции, созданные раньше cutoff.
// Используется свипером для возврата просроченных резервирований.
func (r *TransactionRepository) ListExpiredPending(ctx context.Context, cutoff time.Time) ([]models.Transaction, error) {
	var items []models.Transaction
	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM transactions
		WHERE state = $1 AND created_at < $2
		ORDER BY created_at ASC
	`, models.TransactionStatePending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("transaction repository: list expired pending: %w", err)
	}
	return items, nil
}
