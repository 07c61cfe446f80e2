package stock

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
)

func TestMain(m *testing.M) {
	logger.Init("error")
	m.Run()
}

// fakeProductStore повторяет семантику условного UPDATE: списание атомарно и
// отказывает без мутаций при нехватке остатка.
type fakeProductStore struct {
	mu       sync.Mutex
	qty      map[uuid.UUID]int
	statuses map[uuid.UUID]string
}

func newFakeProductStore() *fakeProductStore {
	return &fakeProductStore{
		qty:      make(map[uuid.UUID]int),
		statuses: make(map[uuid.UUID]string),
	}
}

func (f *fakeProductStore) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	qty, ok := f.qty[id]
	if !ok {
		return nil, apperror.ErrProductNotFound
	}
	status := f.statuses[id]
	if status == "" {
		status = models.ProductStatusActive
	}
	return &models.Product{ID: id, AvailableQty: qty, Status: status, MOQ: 1}, nil
}

func (f *fakeProductStore) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	have, ok := f.qty[productID]
	if !ok {
		return apperror.ErrProductNotFound
	}
	if have < qty {
		return apperror.ErrInsufficientStock
	}
	f.qty[productID] = have - qty
	return nil
}

func (f *fakeProductStore) IncrementStock(ctx context.Context, productID uuid.UUID, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.qty[productID] += qty
	return nil
}

func (f *fakeProductStore) available(productID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.qty[productID]
}

func TestLedger_Reserve(t *testing.T) {
	store := newFakeProductStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	productID := uuid.New()
	store.qty[productID] = 10

	r, err := ledger.Reserve(ctx, productID, 3)
	require.NoError(t, err)
	assert.Equal(t, productID, r.ProductID)
	assert.Equal(t, 3, r.Qty)
	assert.Equal(t, 7, store.available(productID))
}

func TestLedger_Reserve_InsufficientStock(t *testing.T) {
	store := newFakeProductStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	productID := uuid.New()
	store.qty[productID] = 2

	_, err := ledger.Reserve(ctx, productID, 3)
	assert.ErrorIs(t, err, apperror.ErrInsufficientStock)
	assert.Equal(t, 2, store.available(productID), "остаток не должен меняться при отказе")
}

func TestLedger_Reserve_InvalidQty(t *testing.T) {
	store := newFakeProductStore()
	ledger := NewLedger(store)

	_, err := ledger.Reserve(context.Background(), uuid.New(), 0)
	assert.Error(t, err)
}

func TestLedger_Reserve_LastUnitRace(t *testing.T) {
	store := newFakeProductStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	productID := uuid.New()
	store.qty[productID] = 1

	const workers = 32
	var wg sync.WaitGroup
	var won int32
	var wonMu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Reserve(ctx, productID, 1); err == nil {
				wonMu.Lock()
				won++
				wonMu.Unlock()
			} else if !errors.Is(err, apperror.ErrInsufficientStock) {
				t.Errorf("неожиданная ошибка резервирования: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, won, "последнюю единицу должен получить ровно один покупатель")
	assert.Equal(t, 0, store.available(productID))
}

func TestLedger_Release_Idempotent(t *testing.T) {
	store := newFakeProductStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	productID := uuid.New()
	store.qty[productID] = 5

	r, err := ledger.Reserve(ctx, productID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, store.available(productID))

	require.NoError(t, ledger.Release(ctx, r))
	assert.Equal(t, 5, store.available(productID))

	// Повторный Release ничего не докредитовывает.
	require.NoError(t, ledger.Release(ctx, r))
	assert.Equal(t, 5, store.available(productID))
	assert.True(t, ledger.Released(r))
}

func TestLedger_Commit(t *testing.T) {
	store := newFakeProductStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	productID := uuid.New()
	store.qty[productID] = 5

	r, err := ledger.Reserve(ctx, productID, 2)
	require.NoError(t, err)

	require.NoError(t, ledger.Commit(ctx, r))
	// Остаток списан при Reserve, Commit его не трогает.
	assert.Equal(t, 3, store.available(productID))

	// Release после фиксации — no-op.
	require.NoError(t, ledger.Release(ctx, r))
	assert.Equal(t, 3, store.available(productID))
}

func TestLedger_Commit_AfterRelease(t *testing.T) {
	store := newFakeProductStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	productID := uuid.New()
	store.qty[productID] = 5

	r, err := ledger.Reserve(ctx, productID, 2)
	require.NoError(t, err)
	require.NoError(t, ledger.Release(ctx, r))

	err = ledger.Commit(ctx, r)
	assert.ErrorIs(t, err, apperror.ErrReservationCollision)
}

func TestLedger_Commit_SuspendedProduct(t *testing.T) {
	store := newFakeProductStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	productID := uuid.New()
	store.qty[productID] = 5

	r, err := ledger.Reserve(ctx, productID, 1)
	require.NoError(t, err)

	store.mu.Lock()
	store.statuses[productID] = models.ProductStatusSuspended
	store.mu.Unlock()

	err = ledger.Commit(ctx, r)
	assert.ErrorIs(t, err, apperror.ErrReservationCollision)
}

func TestLedger_Adopt(t *testing.T) {
	store := newFakeProductStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	productID := uuid.New()
	store.qty[productID] = 3

	// Adopt восстанавливает хэндл по уже списанной позиции.
	r := ledger.Adopt(productID, 2)
	require.NoError(t, ledger.Release(ctx, r))
	assert.Equal(t, 5, store.available(productID))
}
