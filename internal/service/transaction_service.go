package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/marketplace-backend/internal/broker"
	"github.com/ignatzorin/marketplace-backend/internal/cache"
	"github.com/ignatzorin/marketplace-backend/internal/gateway"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/metrics"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/stock"
)

// TransactionStore — операции хранилища, нужные машине состояний покупки.
type TransactionStore interface {
	Create(ctx context.Context, t *models.Transaction, lines []models.TransactionLine) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetLines(ctx context.Context, transactionID uuid.UUID) ([]models.TransactionLine, error)
	PendingForBuyer(ctx context.Context, buyerID uuid.UUID) (*models.Transaction, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Transaction, error)
	MarkState(ctx context.Context, id uuid.UUID, state string, failReason *string) (bool, error)
	MarkCollided(ctx context.Context, id uuid.UUID) (bool, error)
	AttachPayment(ctx context.Context, id, paymentID uuid.UUID) error
	AttachDelivery(ctx context.Context, id, deliveryID uuid.UUID) error
	SetLinesClaim(ctx context.Context, transactionID uuid.UUID, status string) error
	ListExpiredPending(ctx context.Context, cutoff time.Time) ([]models.Transaction, error)
}

// PaymentStore — хранилище платежей и доставок.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	CreateDelivery(ctx context.Context, d *models.Delivery) error
	GetDelivery(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
	SetTracking(ctx context.Context, deliveryID uuid.UUID, trackingNo string) error
}

// CheckoutRequest — запрос на создание покупки.
type CheckoutRequest struct {
	Lines       []models.LineRequest
	Delivery    *models.DeliveryRequest
	PaymentType *string
}

// TransactionService ведёт транзакцию от создания до терминального состояния.
// Переходы состояния выполняются условными UPDATE в хранилище, поэтому
// конкурирующие пути (покупка, отмена, свипер) никогда не выполняют побочные
// эффекты терминализации дважды.
type TransactionService struct {
	repo     TransactionStore
	payments PaymentStore
	products stock.ProductStore
	ledger   *stock.Ledger
	gateway  gateway.PaymentGateway
	delivery gateway.DeliveryGateway

	publisher   *broker.Publisher
	statusCache *cache.StatusCache

	paymentTimeout time.Duration
	transactionTTL time.Duration

	// Хэндлы резервирований живых Pending транзакций. Если процесс
	// рестартует, свипер восстановит хэндлы из позиций через ledger.Adopt.
	mu    sync.Mutex
	holds map[uuid.UUID][]*stock.Reservation
}

func NewTransactionService(
	repo TransactionStore,
	payments PaymentStore,
	products stock.ProductStore,
	ledger *stock.Ledger,
	paymentGW gateway.PaymentGateway,
	deliveryGW gateway.DeliveryGateway,
	publisher *broker.Publisher,
	statusCache *cache.StatusCache,
	paymentTimeout, transactionTTL time.Duration,
) *TransactionService {
	return &TransactionService{
		repo:           repo,
		payments:       payments,
		products:       products,
		ledger:         ledger,
		gateway:        paymentGW,
		delivery:       deliveryGW,
		publisher:      publisher,
		statusCache:    statusCache,
		paymentTimeout: paymentTimeout,
		transactionTTL: transactionTTL,
		holds:          make(map[uuid.UUID][]*stock.Reservation),
	}
}

// Checkout создаёт покупку и синхронно ведёт её до терминального состояния.
// Неуспех после создания транзакции выражается её состоянием, а не ошибкой:
// вызывающий смотрит на State и FailReason.
func (s *TransactionService) Checkout(ctx context.Context, buyerID uuid.UUID, req CheckoutRequest) (*models.Transaction, error) {
	if len(req.Lines) == 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "покупка должна содержать хотя бы одну позицию")
	}

	seen := make(map[uuid.UUID]struct{}, len(req.Lines))
	for _, l := range req.Lines {
		if l.Quantity < 1 {
			return nil, apperror.New(apperror.ErrCodeValidation, "количество должно быть не меньше 1")
		}
		if _, ok := seen[l.ProductID]; ok {
			return nil, apperror.New(apperror.ErrCodeValidation, "товар указан в покупке дважды")
		}
		seen[l.ProductID] = struct{}{}
	}

	pending, err := s.repo.PendingForBuyer(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "у покупателя уже есть незавершённая транзакция")
	}

	// Фиксированный глобальный порядок резервирования исключает взаимную
	// блокировку двух покупок с пересекающимися наборами товаров.
	lineReqs := make([]models.LineRequest, len(req.Lines))
	copy(lineReqs, req.Lines)
	sort.Slice(lineReqs, func(i, j int) bool {
		return bytes.Compare(lineReqs[i].ProductID[:], lineReqs[j].ProductID[:]) < 0
	})

	now := time.Now()
	lines := make([]models.TransactionLine, 0, len(lineReqs))
	txID := uuid.New()
	for _, l := range lineReqs {
		product, err := s.products.GetProduct(ctx, l.ProductID)
		if err != nil {
			return nil, err
		}
		if product.Status != models.ProductStatusActive {
			return nil, apperror.New(apperror.ErrCodeValidation,
				fmt.Sprintf("товар %s недоступен для покупки", product.Name))
		}
		if l.Quantity < product.MOQ {
			return nil, apperror.New(apperror.ErrCodeValidation,
				fmt.Sprintf("минимальное количество для %s: %d", product.Name, product.MOQ))
		}

		lines = append(lines, models.TransactionLine{
			TransactionID: txID,
			ProductID:     l.ProductID,
			Quantity:      l.Quantity,
			SoldPrice:     product.SoldPrice(now),
			ClaimStatus:   models.ClaimStatusInvalid,
		})
	}

	tx := &models.Transaction{
		ID:      txID,
		BuyerID: buyerID,
		State:   models.TransactionStatePending,
	}
	if err := s.repo.Create(ctx, tx, lines); err != nil {
		return nil, err
	}
	metrics.TransactionsCreatedTotal.Inc()

	// Резервируем позиции по одной. Первый отказ терминализирует транзакцию;
	// уже удержанный префикс возвращает finalizeFailed, получив живые хэндлы.
	// Восстановление хэндлов из позиций остаётся свиперу: здесь оно вернуло
	// бы на склад и то, что никогда не резервировалось.
	reservations := make([]*stock.Reservation, 0, len(lines))
	for _, l := range lines {
		r, err := s.ledger.Reserve(ctx, l.ProductID, l.Quantity)
		if err != nil {
			if errors.Is(err, apperror.ErrInsufficientStock) {
				metrics.ReservationsFailedTotal.Inc()
				s.finalizeFailed(ctx, tx, models.FailReasonInsufficientStock, reservations)
				return tx, nil
			}
			s.finalizeFailed(ctx, tx, models.FailReasonInternal, reservations)
			return tx, err
		}
		reservations = append(reservations, r)
	}
	s.trackHolds(txID, reservations)

	// Платёж — единственный внешне-медленный шаг; он ограничен таймаутом и
	// по его истечении трактуется как отказ.
	chargeCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()

	result, err := s.gateway.Charge(chargeCtx, gateway.ChargeRequest{
		TransactionID: txID,
		BuyerID:       buyerID,
		Amount:        models.TotalAmount(lines),
		PaymentType:   req.PaymentType,
	})
	if err != nil {
		reason := models.FailReasonPaymentDeclined
		if errors.Is(err, apperror.ErrReservationTimeout) {
			reason = models.FailReasonTimeout
		}
		s.finalizeFailed(ctx, tx, reason, reservations)
		return tx, nil
	}

	return s.approve(ctx, tx, lines, reservations, result, req)
}

// approve завершает транзакцию после успешного списания средств: повторно
// проверяет резервирования и либо одобряет покупку, либо фиксирует коллизию.
func (s *TransactionService) approve(
	ctx context.Context,
	tx *models.Transaction,
	lines []models.TransactionLine,
	reservations []*stock.Reservation,
	charge *gateway.ChargeResult,
	req CheckoutRequest,
) (*models.Transaction, error) {
	for _, r := range reservations {
		if err := s.ledger.Commit(ctx, r); err != nil {
			return s.finalizeCollided(ctx, tx, lines, charge, req.PaymentType)
		}
	}

	won, err := s.repo.MarkState(ctx, tx.ID, models.TransactionStateApproved, nil)
	if err != nil {
		return tx, err
	}
	if !won {
		// Свипер или отмена успели провалить транзакцию и вернуть остаток,
		// а деньги уже списаны. Это коллизия.
		return s.finalizeCollided(ctx, tx, lines, charge, req.PaymentType)
	}
	tx.State = models.TransactionStateApproved
	s.dropHolds(tx.ID)

	payment := &models.Payment{
		ID:          uuid.New(),
		GatewayRef:  charge.GatewayRef,
		Amount:      models.TotalAmount(lines),
		PaymentType: req.PaymentType,
		CardType:    charge.CardType,
		CardLast4:   charge.CardLast4,
	}
	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		return tx, err
	}
	if err := s.repo.AttachPayment(ctx, tx.ID, payment.ID); err != nil {
		return tx, err
	}
	tx.PaymentID = &payment.ID

	// Выплаты продавцам открываются только по одобренной покупке.
	if err := s.repo.SetLinesClaim(ctx, tx.ID, models.ClaimStatusPending); err != nil {
		return tx, err
	}

	if req.Delivery != nil {
		if err := s.attachDelivery(ctx, tx, req.Delivery); err != nil {
			// Покупка уже одобрена и оплачена: проблемы доставки не
			// откатывают её, отправление регистрируется повторно вручную.
			logger.Log.WithError(err).WithField("transaction_id", tx.ID).
				Warn("transaction: не удалось оформить доставку")
		}
	}

	metrics.TransactionsApprovedTotal.Inc()
	s.announce(ctx, tx, broker.EventTransactionApproved, payment.Amount, "")
	return tx, nil
}

func (s *TransactionService) attachDelivery(ctx context.Context, tx *models.Transaction, req *models.DeliveryRequest) error {
	delivery := &models.Delivery{
		ID:        uuid.New(),
		Status:    models.DeliveryStatusProcessing,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		ContactNo: req.ContactNo,
		Address:   req.Address,
	}

	if s.delivery != nil {
		shipment, err := s.delivery.RegisterShipment(ctx, gateway.ShipmentRequest{
			TransactionID: tx.ID,
			FirstName:     req.FirstName,
			LastName:      req.LastName,
			ContactNo:     req.ContactNo,
			Address:       req.Address,
		})
		if err == nil {
			delivery.Fee = shipment.Fee
			delivery.TrackingNo = &shipment.TrackingNo
		} else {
			logger.Log.WithError(err).WithField("transaction_id", tx.ID).
				Warn("transaction: служба доставки недоступна, отправление без трек-номера")
		}
	}

	if err := s.payments.CreateDelivery(ctx, delivery); err != nil {
		return err
	}
	if err := s.repo.AttachDelivery(ctx, tx.ID, delivery.ID); err != nil {
		return err
	}
	tx.DeliveryID = &delivery.ID
	return nil
}

// finalizeFailed терминализирует транзакцию как Failed. Возврат остатка
// выполняет только победитель условного UPDATE: проигравший знает, что
// конкурент уже вернул резервирования тем же путём.
func (s *TransactionService) finalizeFailed(ctx context.Context, tx *models.Transaction, reason string, reservations []*stock.Reservation) {
	won, err := s.repo.MarkState(ctx, tx.ID, models.TransactionStateFailed, &reason)
	if err != nil {
		logger.Log.WithError(err).WithField("transaction_id", tx.ID).
			Error("transaction: не удалось провалить транзакцию")
		return
	}
	if !won {
		s.dropHolds(tx.ID)
		return
	}

	tx.State = models.TransactionStateFailed
	tx.FailReason = &reason
	s.releaseAll(ctx, s.takeHolds(tx.ID, reservations))

	metrics.TransactionsFailedTotal.WithLabelValues(reason).Inc()
	s.announce(ctx, tx, broker.EventTransactionFailed, 0, reason)
}

// finalizeCollided фиксирует самый неприятный исход: деньги списаны, а склад
// больше не может обеспечить покупку. Состояние терминально и намеренно не
// разворачивается автоматически; запись о платеже сохраняется как след
// списанных средств для ручного разбирательства.
func (s *TransactionService) finalizeCollided(
	ctx context.Context,
	tx *models.Transaction,
	lines []models.TransactionLine,
	charge *gateway.ChargeResult,
	paymentType *string,
) (*models.Transaction, error) {
	won, err := s.repo.MarkCollided(ctx, tx.ID)
	if err != nil {
		return tx, err
	}
	s.dropHolds(tx.ID)
	if !won {
		fresh, err := s.repo.GetByID(ctx, tx.ID)
		if err != nil {
			return tx, err
		}
		return fresh, nil
	}
	tx.State = models.TransactionStatePaidButCollided

	payment := &models.Payment{
		ID:          uuid.New(),
		GatewayRef:  charge.GatewayRef,
		Amount:      models.TotalAmount(lines),
		PaymentType: paymentType,
		CardType:    charge.CardType,
		CardLast4:   charge.CardLast4,
	}
	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		logger.Log.WithError(err).WithField("transaction_id", tx.ID).
			Error("transaction: не удалось сохранить платёж по коллизии")
	} else if err := s.repo.AttachPayment(ctx, tx.ID, payment.ID); err != nil {
		logger.Log.WithError(err).WithField("transaction_id", tx.ID).
			Error("transaction: не удалось привязать платёж по коллизии")
	} else {
		tx.PaymentID = &payment.ID
	}

	metrics.TransactionsCollidedTotal.Inc()
	logger.Log.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"buyer_id":       tx.BuyerID,
		"gateway_ref":    charge.GatewayRef,
		"amount":         payment.Amount,
	}).Error("transaction: платёж списан при коллизии резервирования, требуется ручное вмешательство")

	s.announce(ctx, tx, broker.EventTransactionCollided, payment.Amount, "")
	return tx, nil
}

// Cancel отменяет собственную Pending транзакцию покупателя и возвращает
// остаток тем же путём, что и свипер.
func (s *TransactionService) Cancel(ctx context.Context, requesterID uuid.UUID, transactionID uuid.UUID, isAdmin bool) (*models.Transaction, error) {
	tx, err := s.repo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.BuyerID != requesterID && !isAdmin {
		return nil, apperror.ErrPermissionDenied
	}
	if tx.IsTerminal() {
		return nil, apperror.ErrInvalidStateTransition
	}

	s.finalizeFailed(ctx, tx, models.FailReasonCancelled, nil)

	fresh, err := s.repo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// TransactionDetails — полный ответ по транзакции: позиции и, если они уже
// привязаны, платёж и отправление.
type TransactionDetails struct {
	Transaction *models.Transaction      `json:"transaction"`
	Lines       []models.TransactionLine `json:"lines"`
	Payment     *models.Payment          `json:"payment,omitempty"`
	Delivery    *models.Delivery         `json:"delivery,omitempty"`
}

// GetStatus возвращает транзакцию с позициями, платежом и доставкой.
func (s *TransactionService) GetStatus(ctx context.Context, requesterID uuid.UUID, transactionID uuid.UUID, isAdmin bool) (*TransactionDetails, error) {
	tx, err := s.repo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.BuyerID != requesterID && !isAdmin {
		return nil, apperror.ErrPermissionDenied
	}

	lines, err := s.repo.GetLines(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	details := &TransactionDetails{Transaction: tx, Lines: lines}
	if tx.PaymentID != nil {
		if details.Payment, err = s.payments.GetPayment(ctx, *tx.PaymentID); err != nil {
			return nil, err
		}
	}
	if tx.DeliveryID != nil {
		if details.Delivery, err = s.payments.GetDelivery(ctx, *tx.DeliveryID); err != nil {
			return nil, err
		}
	}
	return details, nil
}

// PollState возвращает состояние транзакции для частого опроса со стороны
// клиента. Кэш хранит только терминальные состояния; промах ведёт в
// хранилище с проверкой владельца.
func (s *TransactionService) PollState(ctx context.Context, requesterID uuid.UUID, transactionID uuid.UUID, isAdmin bool) (string, error) {
	if state := s.cachedState(ctx, transactionID); state != "" {
		return state, nil
	}

	tx, err := s.repo.GetByID(ctx, transactionID)
	if err != nil {
		return "", err
	}
	if tx.BuyerID != requesterID && !isAdmin {
		return "", apperror.ErrPermissionDenied
	}
	return tx.State, nil
}

func (s *TransactionService) cachedState(ctx context.Context, transactionID uuid.UUID) string {
	state, err := s.statusCache.GetState(ctx, transactionID)
	if err != nil {
		logger.Log.WithError(err).Debug("transaction: кэш статусов недоступен")
		return ""
	}
	return state
}

// AssignTracking проставляет трек-номер отправлению вручную: используется,
// когда служба доставки была недоступна в момент одобрения покупки.
func (s *TransactionService) AssignTracking(ctx context.Context, deliveryID uuid.UUID, trackingNo string) error {
	if trackingNo == "" {
		return apperror.New(apperror.ErrCodeValidation, "трек-номер не может быть пустым")
	}
	return s.payments.SetTracking(ctx, deliveryID, trackingNo)
}

// ListByBuyer возвращает историю покупок пользователя.
func (s *TransactionService) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Transaction, error) {
	return s.repo.ListByBuyer(ctx, buyerID)
}

// SweepExpired находит Pending транзакции старше TTL и проваливает их с
// причиной Timeout, возвращая остаток. Возврат идёт тем же путём, что и
// явная отмена, поэтому гонка свипера с отменой безопасна.
func (s *TransactionService) SweepExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.transactionTTL)
	expired, err := s.repo.ListExpiredPending(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	swept := 0
	for i := range expired {
		tx := &expired[i]
		reason := models.FailReasonTimeout

		won, err := s.repo.MarkState(ctx, tx.ID, models.TransactionStateFailed, &reason)
		if err != nil {
			logger.Log.WithError(err).WithField("transaction_id", tx.ID).
				Error("sweeper: не удалось провалить просроченную транзакцию")
			continue
		}
		if !won {
			continue
		}
		tx.State = models.TransactionStateFailed
		tx.FailReason = &reason

		s.releaseAll(ctx, s.takeHolds(tx.ID, nil))

		swept++
		metrics.SweptTransactionsTotal.Inc()
		metrics.TransactionsFailedTotal.WithLabelValues(reason).Inc()
		s.announce(ctx, tx, broker.EventTransactionFailed, 0, reason)
	}
	return swept, nil
}

// trackHolds запоминает хэндлы резервирований живой транзакции.
func (s *TransactionService) trackHolds(transactionID uuid.UUID, reservations []*stock.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holds[transactionID] = reservations
}

func (s *TransactionService) dropHolds(transactionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.holds, transactionID)
}

// takeHolds извлекает хэндлы транзакции. Если хэндлы утеряны (рестарт
// процесса), восстанавливает их из сохранённых позиций: остаток по ним был
// списан при резервировании и подлежит возврату.
func (s *TransactionService) takeHolds(transactionID uuid.UUID, fallback []*stock.Reservation) []*stock.Reservation {
	s.mu.Lock()
	held, ok := s.holds[transactionID]
	if ok {
		delete(s.holds, transactionID)
	}
	s.mu.Unlock()
	if ok {
		return held
	}
	if fallback != nil {
		return fallback
	}

	lines, err := s.repo.GetLines(context.Background(), transactionID)
	if err != nil {
		logger.Log.WithError(err).WithField("transaction_id", transactionID).
			Error("transaction: не удалось восстановить резервирования из позиций")
		return nil
	}
	adopted := make([]*stock.Reservation, 0, len(lines))
	for _, l := range lines {
		adopted = append(adopted, s.ledger.Adopt(l.ProductID, l.Quantity))
	}
	return adopted
}

func (s *TransactionService) releaseAll(ctx context.Context, reservations []*stock.Reservation) {
	for _, r := range reservations {
		if err := s.ledger.Release(ctx, r); err != nil {
			logger.Log.WithError(err).WithField("product_id", r.ProductID).
				Error("transaction: не удалось вернуть резервирование")
		}
	}
}

// announce обновляет кэш статуса и публикует событие жизненного цикла.
// Обе операции необязательные: их отказ не влияет на исход транзакции.
func (s *TransactionService) announce(ctx context.Context, tx *models.Transaction, eventType string, amount float64, failReason string) {
	if err := s.statusCache.SetState(ctx, tx.ID, tx.State); err != nil {
		logger.Log.WithError(err).Debug("transaction: не удалось обновить кэш статуса")
	}

	err := s.publisher.Publish(ctx, broker.TransactionEvent{
		EventType:     eventType,
		TransactionID: tx.ID,
		BuyerID:       tx.BuyerID,
		Amount:        amount,
		FailReason:    failReason,
		OccurredAt:    time.Now(),
	})
	if err != nil {
		logger.Log.WithError(err).WithField("transaction_id", tx.ID).
			Warn("transaction: не удалось опубликовать событие")
	}
}
