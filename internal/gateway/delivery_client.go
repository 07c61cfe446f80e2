package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DeliveryGateway — внешняя служба доставки. Регистрация отправления не
// входит в критический путь одобрения транзакции: отказ службы не откатывает
// покупку, трек-номер можно дозаписать позже.
type DeliveryGateway interface {
	RegisterShipment(ctx context.Context, req ShipmentRequest) (*ShipmentResult, error)
}

// ShipmentRequest — заявка на отправление.
type ShipmentRequest struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	ContactNo     string    `json:"contact_no"`
	Address       string    `json:"address"`
}

// ShipmentResult — ответ службы доставки.
type ShipmentResult struct {
	TrackingNo string  `json:"tracking_no"`
	Fee        float64 `json:"fee"`
}

// DeliveryClient реализует DeliveryGateway поверх HTTP JSON API.
type DeliveryClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewDeliveryClient(baseURL string, timeout time.Duration) *DeliveryClient {
	return &DeliveryClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *DeliveryClient) RegisterShipment(ctx context.Context, req ShipmentRequest) (*ShipmentResult, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("delivery gateway: baseURL не задан")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shipments", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("delivery gateway: запрос: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("delivery gateway: код ответа %d", resp.StatusCode)
	}

	var result ShipmentResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("delivery gateway: разбор ответа: %w", err)
	}
	return &result, nil
}
