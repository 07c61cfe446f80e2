package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/stock"
)

// LineClaimStore — операции хранилища, нужные взаиморасчётам с продавцами.
type LineClaimStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetLines(ctx context.Context, transactionID uuid.UUID) ([]models.TransactionLine, error)
	UpdateLineClaim(ctx context.Context, transactionID, productID uuid.UUID, from, to string) error
}

// ReconciliationService управляет статусом выплаты продавцу по позициям
// одобренных транзакций. Сами переходы инициируются людьми: продавец
// запрашивает выплату, оператор подтверждает или возвращает её в очередь.
type ReconciliationService struct {
	repo     LineClaimStore
	products stock.ProductStore
}

func NewReconciliationService(repo LineClaimStore, products stock.ProductStore) *ReconciliationService {
	return &ReconciliationService{repo: repo, products: products}
}

// RequestClaim переводит позицию из Pending в Unclaimed: продавец заявил
// права на выручку. Доступно только продавцу товара позиции.
func (s *ReconciliationService) RequestClaim(ctx context.Context, sellerID uuid.UUID, transactionID, productID uuid.UUID) error {
	if err := s.checkLine(ctx, sellerID, transactionID, productID, false); err != nil {
		return err
	}
	return s.repo.UpdateLineClaim(ctx, transactionID, productID,
		models.ClaimStatusPending, models.ClaimStatusUnclaimed)
}

// SettleClaim переводит позицию из Unclaimed в Claimed: выплата произведена.
// Доступно только оператору.
func (s *ReconciliationService) SettleClaim(ctx context.Context, transactionID, productID uuid.UUID) error {
	if err := s.checkLine(ctx, uuid.Nil, transactionID, productID, true); err != nil {
		return err
	}
	return s.repo.UpdateLineClaim(ctx, transactionID, productID,
		models.ClaimStatusUnclaimed, models.ClaimStatusClaimed)
}

// ReturnClaim возвращает позицию из Unclaimed в Pending: заявка отозвана.
func (s *ReconciliationService) ReturnClaim(ctx context.Context, transactionID, productID uuid.UUID) error {
	if err := s.checkLine(ctx, uuid.Nil, transactionID, productID, true); err != nil {
		return err
	}
	return s.repo.UpdateLineClaim(ctx, transactionID, productID,
		models.ClaimStatusUnclaimed, models.ClaimStatusPending)
}

// Lines возвращает позиции транзакции.
func (s *ReconciliationService) Lines(ctx context.Context, transactionID uuid.UUID) ([]models.TransactionLine, error) {
	return s.repo.GetLines(ctx, transactionID)
}

// checkLine проверяет, что транзакция одобрена и, для запросов продавца,
// что позиция принадлежит его товару. Выплаты существуют только по
// одобренным покупкам.
func (s *ReconciliationService) checkLine(ctx context.Context, sellerID uuid.UUID, transactionID, productID uuid.UUID, isAdmin bool) error {
	tx, err := s.repo.GetByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if tx.State != models.TransactionStateApproved {
		return apperror.ErrInvalidStateTransition
	}
	if isAdmin {
		return nil
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if product.SellerID != sellerID {
		return apperror.ErrPermissionDenied
	}
	return nil
}
