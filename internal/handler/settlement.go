package handler

import (
	"net/http"
	"strconv"

	"github.com/SettleGuard/settleguard/internal/model"
	"github.com/SettleGuard/settleguard/internal/settlement"
	"github.com/gin-gonic/gin"
)

type SettlementHandler struct {
	engine   *settlement.Engine
	registry *settlement.Registry
}

func NewSettlementHandler(engine *settlement.Engine, registry *settlement.Registry) *SettlementHandler {
	return &SettlementHandler{engine: engine, registry: registry}
}

func (h *SettlementHandler) ListAdapters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"adapters": h.registry.List(),
		"active":   h.registry.ActiveName(),
	})
}

type setActiveRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *SettlementHandler) SetActiveAdapter(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.registry.SetActive(req.Name); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": req.Name})
}

func (h *SettlementHandler) SettleEpoch(c *gin.Context) {
	epochID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid epoch id"})
		return
	}

	result, err := h.engine.SettleEpoch(c.Request.Context(), epochID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type estimateRequest struct {
	Items []model.BatchItem `json:"items" binding:"required"`
}

func (h *SettlementHandler) EstimateFee(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	estimate, err := h.engine.EstimateFee(c.Request.Context(), req.Items)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, estimate)
}

// GetBatch re-polls the owning adapter before answering, so callers always
// see the freshest known status.
func (h *SettlementHandler) GetBatch(c *gin.Context) {
	batch, err := h.engine.ReconcileBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (h *SettlementHandler) CancelBatch(c *gin.Context) {
	batch, err := h.engine.CancelBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (h *SettlementHandler) AdapterHealth(c *gin.Context) {
	adapter, err := h.registry.Get(c.Param("name"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, adapter.HealthCheck(c.Request.Context()))
}
