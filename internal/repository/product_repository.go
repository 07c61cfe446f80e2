package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

// ProductRepository читает каталог и изменяет единственное поле, которым
// владеет ядро транзакций, — available_qty.
type ProductRepository struct {
	db *sqlx.DB
}

func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return common.GetByID[models.Product](ctx, r.db, "products", id, apperror.ErrProductNotFound)
}

// DecrementStock атомарно списывает qty единиц товара. Условный UPDATE одной
// строкой гарантирует, что два конкурентных резервирования не спишут больше
// остатка: проигравший получает apperror.ErrInsufficientStock без мутаций.
func (r *ProductRepository) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET available_qty = available_qty - $2
		WHERE id = $1 AND available_qty >= $2 AND status = $3
	`, productID, qty, models.ProductStatusActive)
	if err != nil {
		return fmt.Errorf("product repository: decrement stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("product repository: decrement stock rows: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Выясняем причину отказа: товара нет, он неактивен или не хватает остатка.
	var product models.Product
	err = r.db.GetContext(ctx, &product, `SELECT * FROM products WHERE id = $1`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("product repository: decrement stock lookup: %w", err)
	}
	if product.Status != models.ProductStatusActive {
		return apperror.New(apperror.ErrCodeValidation, "товар недоступен для покупки")
	}
	return apperror.ErrInsufficientStock
}

// IncrementStock возвращает qty единиц на склад.
func (r *ProductRepository) IncrementStock(ctx context.Context, productID uuid.UUID, qty int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE products SET available_qty = available_qty + $2 WHERE id = $1
	`, productID, qty)
	if err != nil {
		return fmt.Errorf("product repository: increment stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("product repository: increment stock rows: %w", err)
	}
	if affected == 0 {
		return apperror.ErrProductNotFound
	}
	return nil
}

// Create добавляет товар. Используется только шагом первоначального
// наполнения: каталогом владеет внешняя подсистема.
func (r *ProductRepository) Create(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (id, seller_id, name, price, disc_price, promo_active, promo_end_date, moq, available_qty, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (seller_id, name) DO NOTHING
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.SellerID, p.Name, p.Price, p.DiscPrice, p.PromoActive, p.PromoEndDate, p.MOQ, p.AvailableQty, p.Status).
		Scan(&p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Товар уже существует — шаг наполнения идемпотентен.
		return nil
	}
	return err
}
