package stock

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
)

// ProductStore — минимальный интерфейс склада, который нужен леджеру.
// DecrementStock обязан быть атомарным условным списанием: при нехватке
// остатка он возвращает apperror.ErrInsufficientStock и ничего не меняет.
type ProductStore interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int) error
	IncrementStock(ctx context.Context, productID uuid.UUID, qty int) error
}

type reservationState int

const (
	stateReserved reservationState = iota
	stateCommitted
	stateReleased
)

// Reservation — хэндл провизорного удержания количества товара.
// Списание остатка происходит в момент Reserve, поэтому отказ после
// успешного резервирования обязан явно вернуть количество через Release.
type Reservation struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Qty       int

	state reservationState
}

// Ledger управляет резервированием остатков. Линеаризуемость по товару
// обеспечивает хранилище (условный UPDATE одной строкой); леджер добавляет
// идемпотентность Release и различие «зарезервировано/зафиксировано».
type Ledger struct {
	store ProductStore
	mu    sync.Mutex
}

// NewLedger создаёт леджер поверх хранилища товаров.
func NewLedger(store ProductStore) *Ledger {
	return &Ledger{store: store}
}

// Reserve атомарно удерживает qty единиц товара и возвращает хэндл.
// При нехватке остатка возвращает apperror.ErrInsufficientStock без мутаций.
func (l *Ledger) Reserve(ctx context.Context, productID uuid.UUID, qty int) (*Reservation, error) {
	if qty < 1 {
		return nil, apperror.New(apperror.ErrCodeValidation, "количество должно быть не меньше 1")
	}

	if err := l.store.DecrementStock(ctx, productID, qty); err != nil {
		return nil, err
	}

	return &Reservation{
		ID:        uuid.New(),
		ProductID: productID,
		Qty:       qty,
		state:     stateReserved,
	}, nil
}

// Adopt восстанавливает хэндл по сохранённой позиции транзакции — остаток по
// ней уже списан ранее. Используется свипером, когда исходный хэндл утерян
// (например, после рестарта процесса).
func (l *Ledger) Adopt(productID uuid.UUID, qty int) *Reservation {
	return &Reservation{
		ID:        uuid.New(),
		ProductID: productID,
		Qty:       qty,
		state:     stateReserved,
	}
}

// Release возвращает удержанное количество на склад. Идемпотентен: повторный
// вызов, как и вызов для уже зафиксированного хэндла, ничего не меняет.
func (l *Ledger) Release(ctx context.Context, r *Reservation) error {
	l.mu.Lock()
	if r.state != stateReserved {
		l.mu.Unlock()
		return nil
	}
	r.state = stateReleased
	l.mu.Unlock()

	if err := l.store.IncrementStock(ctx, r.ProductID, r.Qty); err != nil {
		// Возврат не прошёл — хэндл снова считается удержанным, чтобы
		// повторный Release смог докредитовать склад.
		l.mu.Lock()
		r.state = stateReserved
		l.mu.Unlock()
		return err
	}

	if logger.Log != nil {
		logger.Log.WithFields(logrus.Fields{
			"product_id": r.ProductID,
			"qty":        r.Qty,
		}).Debug("stock: резервирование возвращено на склад")
	}

	return nil
}

// Commit делает резервирование постоянным. Счётчик остатка не меняется —
// списание произошло при Reserve. Перед фиксацией перепроверяется, что товар
// не заблокирован администратором и что хэндл не был освобождён параллельным
// действием; нарушение любого условия — apperror.ErrReservationCollision.
func (l *Ledger) Commit(ctx context.Context, r *Reservation) error {
	product, err := l.store.GetProduct(ctx, r.ProductID)
	if err != nil {
		return err
	}
	if product.Status == models.ProductStatusSuspended {
		return apperror.ErrReservationCollision
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch r.state {
	case stateCommitted:
		return nil
	case stateReleased:
		return apperror.ErrReservationCollision
	}

	r.state = stateCommitted
	return nil
}

// Released сообщает, был ли хэндл освобождён.
func (l *Ledger) Released(r *Reservation) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return r.state == stateReleased
}
