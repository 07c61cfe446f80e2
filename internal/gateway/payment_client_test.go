package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
)

func testChargeRequest() ChargeRequest {
	return ChargeRequest{
		TransactionID: uuid.New(),
		BuyerID:       uuid.New(),
		Amount:        13.00,
	}
}

func TestPaymentClient_Charge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/charges", r.URL.Path)

		var req ChargeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.InDelta(t, 13.00, req.Amount, 0.001)

		cardType := "VISA"
		last4 := "4242"
		_ = json.NewEncoder(w).Encode(ChargeResult{
			GatewayRef: "pg-12345",
			CardType:   &cardType,
			CardLast4:  &last4,
		})
	}))
	defer srv.Close()

	client := NewPaymentClient(srv.URL, 5*time.Second)
	result, err := client.Charge(context.Background(), testChargeRequest())
	require.NoError(t, err)
	assert.Equal(t, "pg-12345", result.GatewayRef)
	require.NotNil(t, result.CardLast4)
	assert.Equal(t, "4242", *result.CardLast4)
}

func TestPaymentClient_Charge_Declined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "insufficient funds"})
	}))
	defer srv.Close()

	client := NewPaymentClient(srv.URL, 5*time.Second)
	_, err := client.Charge(context.Background(), testChargeRequest())
	require.Error(t, err)
	code, ok := apperror.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, apperror.ErrCodePaymentDeclined, code)
}

func TestPaymentClient_Charge_EmptyGatewayRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ChargeResult{})
	}))
	defer srv.Close()

	client := NewPaymentClient(srv.URL, 5*time.Second)
	_, err := client.Charge(context.Background(), testChargeRequest())
	require.Error(t, err)
	code, ok := apperror.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, apperror.ErrCodePaymentDeclined, code)
}

func TestPaymentClient_Charge_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewPaymentClient(srv.URL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Charge(ctx, testChargeRequest())
	assert.ErrorIs(t, err, apperror.ErrReservationTimeout)
}

func TestPaymentClient_Charge_Unavailable(t *testing.T) {
	// Адрес без слушателя: сетевая ошибка трактуется как отказ платежа.
	client := NewPaymentClient("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := client.Charge(context.Background(), testChargeRequest())
	require.Error(t, err)
	code, ok := apperror.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, apperror.ErrCodePaymentDeclined, code)
}
