package handler

import (
	"errors"
	"net/http"

	"github.com/SettleGuard/settleguard/internal/ledger"
	"github.com/gin-gonic/gin"
)

type IntegrityHandler struct {
	job  *ledger.IntegrityJob
	runs ledger.RunStore
}

func NewIntegrityHandler(job *ledger.IntegrityJob, runs ledger.RunStore) *IntegrityHandler {
	return &IntegrityHandler{job: job, runs: runs}
}

type runRequest struct {
	Day string `json:"day" binding:"required"`
}

// RunCheck triggers the integrity job for one day. The scheduler normally
// drives this; the endpoint exists for manual re-runs.
func (h *IntegrityHandler) RunCheck(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := h.job.RunDailyCheck(c.Request.Context(), req.Day)
	if err != nil {
		if errors.Is(err, ledger.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, run)
}

// LatestRun serves the most recent integrity run for dashboards.
func (h *IntegrityHandler) LatestRun(c *gin.Context) {
	run, err := h.runs.LatestIntegrityRun(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no integrity runs recorded"})
		return
	}
	c.JSON(http.StatusOK, run)
}
