package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/service"
)

// SeedHandler наполняет базу тестовыми данными. Подключается только в
// development окружении.
type SeedHandler struct {
	svc *service.SeedService
}

func NewSeedHandler(svc *service.SeedService) *SeedHandler {
	return &SeedHandler{svc: svc}
}

// Seed обрабатывает POST /seed?buyers=20&products=30
func (h *SeedHandler) Seed(c *gin.Context) {
	buyers, err := strconv.Atoi(c.DefaultQuery("buyers", "20"))
	if err != nil || buyers < 1 || buyers > 500 {
		buyers = 20
	}
	products, err := strconv.Atoi(c.DefaultQuery("products", "30"))
	if err != nil || products < 1 || products > 500 {
		products = 30
	}

	if err := h.svc.SeedData(c.Request.Context(), buyers, products); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "база наполнена",
		"buyers":   buyers,
		"products": products,
	})
}
