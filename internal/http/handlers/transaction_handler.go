package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

type TransactionHandler struct {
	svc *service.TransactionService
	rec *service.ReconciliationService
}

func NewTransactionHandler(svc *service.TransactionService, rec *service.ReconciliationService) *TransactionHandler {
	return &TransactionHandler{svc: svc, rec: rec}
}

// Checkout POST /transactions
// Запрос ведётся синхронно до терминального состояния: в ответе всегда
// транзакция с итоговым state.
func (h *TransactionHandler) Checkout(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		Lines       []models.LineRequest    `json:"lines" binding:"required"`
		Delivery    *models.DeliveryRequest `json:"delivery"`
		PaymentType *string                 `json:"payment_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	tx, err := h.svc.Checkout(c.Request.Context(), userID, service.CheckoutRequest{
		Lines:       req.Lines,
		Delivery:    req.Delivery,
		PaymentType: req.PaymentType,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

// GetStatus GET /transactions/:id
func (h *TransactionHandler) GetStatus(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	txID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	details, err := h.svc.GetStatus(c.Request.Context(), userID, txID, common.IsAdmin(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// PollState GET /transactions/:id/state
// Лёгкий ответ для опроса состояния: только state, без позиций.
func (h *TransactionHandler) PollState(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	txID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	state, err := h.svc.PollState(c.Request.Context(), userID, txID, common.IsAdmin(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

// AssignTracking POST /admin/deliveries/:id/tracking
// Оператор вручную проставляет трек-номер отправлению.
func (h *TransactionHandler) AssignTracking(c *gin.Context) {
	deliveryID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		TrackingNo string `json:"tracking_no" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.svc.AssignTracking(c.Request.Context(), deliveryID, req.TrackingNo); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracking_no": req.TrackingNo})
}

// ListMine GET /transactions
func (h *TransactionHandler) ListMine(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	items, err := h.svc.ListByBuyer(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// Cancel POST /transactions/:id/cancel
func (h *TransactionHandler) Cancel(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	txID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	tx, err := h.svc.Cancel(c.Request.Context(), userID, txID, common.IsAdmin(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// RequestClaim POST /transactions/:id/lines/:productId/claim
// Продавец заявляет права на выручку по позиции.
func (h *TransactionHandler) RequestClaim(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	txID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	productID, err := common.ParseUUIDParam(c, "productId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.rec.RequestClaim(c.Request.Context(), userID, txID, productID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claim_status": models.ClaimStatusUnclaimed})
}

// SettleClaim POST /transactions/:id/lines/:productId/settle
// Оператор подтверждает выплату продавцу.
func (h *TransactionHandler) SettleClaim(c *gin.Context) {
	txID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	productID, err := common.ParseUUIDParam(c, "productId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.rec.SettleClaim(c.Request.Context(), txID, productID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claim_status": models.ClaimStatusClaimed})
}

// ReturnClaim POST /transactions/:id/lines/:productId/return
// Оператор возвращает заявку на выплату в очередь.
func (h *TransactionHandler) ReturnClaim(c *gin.Context) {
	txID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	productID, err := common.ParseUUIDParam(c, "productId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.rec.ReturnClaim(c.Request.Context(), txID, productID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claim_status": models.ClaimStatusPending})
}
