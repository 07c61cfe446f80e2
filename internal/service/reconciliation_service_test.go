package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
)

func reconciliationFixture(t *testing.T, txState string) (*ReconciliationService, *memTransactionStore, uuid.UUID, uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	products := newMemProductStore()
	repo := newMemTransactionStore()
	svc := NewReconciliationService(repo, products)

	sellerID := uuid.New()
	productID := uuid.New()
	products.add(&models.Product{
		ID: productID, SellerID: sellerID, Name: "товар",
		Price: 5.00, MOQ: 1, AvailableQty: 10, Status: models.ProductStatusActive,
	})

	claim := models.ClaimStatusPending
	if txState != models.TransactionStateApproved {
		claim = models.ClaimStatusInvalid
	}
	txID := uuid.New()
	require.NoError(t, repo.Create(ctx, &models.Transaction{
		ID: txID, BuyerID: uuid.New(), State: txState,
	}, []models.TransactionLine{
		{TransactionID: txID, ProductID: productID, Quantity: 2, SoldPrice: 5.00, ClaimStatus: claim},
	}))

	return svc, repo, sellerID, txID, productID
}

func lineClaim(t *testing.T, repo *memTransactionStore, txID, productID uuid.UUID) string {
	t.Helper()
	lines, err := repo.GetLines(context.Background(), txID)
	require.NoError(t, err)
	for _, l := range lines {
		if l.ProductID == productID {
			return l.ClaimStatus
		}
	}
	t.Fatalf("позиция %s не найдена", productID)
	return ""
}

func TestReconciliationService_ClaimLifecycle(t *testing.T) {
	svc, repo, sellerID, txID, productID := reconciliationFixture(t, models.TransactionStateApproved)
	ctx := context.Background()

	// Продавец заявляет права на выручку.
	require.NoError(t, svc.RequestClaim(ctx, sellerID, txID, productID))
	assert.Equal(t, models.ClaimStatusUnclaimed, lineClaim(t, repo, txID, productID))

	// Оператор подтверждает выплату.
	require.NoError(t, svc.SettleClaim(ctx, txID, productID))
	assert.Equal(t, models.ClaimStatusClaimed, lineClaim(t, repo, txID, productID))

	// Из Claimed переходов нет.
	err := svc.SettleClaim(ctx, txID, productID)
	assert.Error(t, err)
}

func TestReconciliationService_ReturnClaim(t *testing.T) {
	svc, repo, sellerID, txID, productID := reconciliationFixture(t, models.TransactionStateApproved)
	ctx := context.Background()

	require.NoError(t, svc.RequestClaim(ctx, sellerID, txID, productID))
	require.NoError(t, svc.ReturnClaim(ctx, txID, productID))
	assert.Equal(t, models.ClaimStatusPending, lineClaim(t, repo, txID, productID))

	// Цикл можно пройти заново.
	require.NoError(t, svc.RequestClaim(ctx, sellerID, txID, productID))
	assert.Equal(t, models.ClaimStatusUnclaimed, lineClaim(t, repo, txID, productID))
}

func TestReconciliationService_RequestClaim_ForeignSeller(t *testing.T) {
	svc, _, _, txID, productID := reconciliationFixture(t, models.TransactionStateApproved)

	err := svc.RequestClaim(context.Background(), uuid.New(), txID, productID)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
}

func TestReconciliationService_RequestClaim_NotApproved(t *testing.T) {
	svc, _, sellerID, txID, productID := reconciliationFixture(t, models.TransactionStateFailed)

	err := svc.RequestClaim(context.Background(), sellerID, txID, productID)
	assert.ErrorIs(t, err, apperror.ErrInvalidStateTransition)
}

func TestReconciliationService_RequestClaim_DoubleRequest(t *testing.T) {
	svc, _, sellerID, txID, productID := reconciliationFixture(t, models.TransactionStateApproved)
	ctx := context.Background()

	require.NoError(t, svc.RequestClaim(ctx, sellerID, txID, productID))
	err := svc.RequestClaim(ctx, sellerID, txID, productID)
	assert.ErrorIs(t, err, apperror.ErrInvalidStateTransition)
}
