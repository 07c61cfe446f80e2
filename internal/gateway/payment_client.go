package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/metrics"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
)

// PaymentGateway — внешний платёжный шлюз. Charge обязан завершиться в
// пределах таймаута вызова; превышение трактуется как отказ.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// ChargeRequest — запрос на списание средств по транзакции.
type ChargeRequest struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	Amount        float64   `json:"amount"`
	PaymentType   *string   `json:"payment_type,omitempty"`
}

// ChargeResult — результат успешного списания.
type ChargeResult struct {
	GatewayRef string  `json:"gateway_ref"`
	CardType   *string `json:"card_type,omitempty"`
	CardLast4  *string `json:"card_last4,omitempty"`
}

// PaymentClient реализует PaymentGateway поверх HTTP JSON API шлюза.
type PaymentClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPaymentClient создаёт клиента платёжного шлюза. Таймаут HTTP клиента и
// есть бюджет времени на списание.
func NewPaymentClient(baseURL string, timeout time.Duration) *PaymentClient {
	return &PaymentClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Charge выполняет авторизацию и списание одним вызовом. Любая сетевая
// ошибка, таймаут или код ответа >= 400 превращаются в отказ платежа:
// идти дальше по конвейеру без подтверждённых денег нельзя.
func (c *PaymentClient) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("payment gateway: baseURL не задан")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	metrics.PaymentLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperror.ErrReservationTimeout
		}
		return nil, apperror.Wrap(err, apperror.ErrCodePaymentDeclined, "платёжный шлюз недоступен")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return nil, apperror.Wrap(
			fmt.Errorf("payment gateway: код ответа %d: %v", resp.StatusCode, errorBody),
			apperror.ErrCodePaymentDeclined, "платёж отклонён")
	}

	var result ChargeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("payment gateway: разбор ответа: %w", err)
	}
	if result.GatewayRef == "" {
		return nil, apperror.Wrap(fmt.Errorf("payment gateway: пустой gateway_ref"),
			apperror.ErrCodePaymentDeclined, "платёж отклонён")
	}
	return &result, nil
}
