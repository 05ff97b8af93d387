package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ranklite/backlink-engine/internal/logger"
	"github.com/ranklite/backlink-engine/internal/repository"
	"github.com/ranklite/backlink-engine/internal/worker"
)

// EngineHandler serves the exchange cycle, plan generation, and the task
// worker surface.
type EngineHandler struct {
	exchange *worker.ExchangeCycle
	planner  *worker.Planner
	tasks    *worker.TaskWorker
	logger   logger.Logger
}

func NewEngineHandler(
	exchange *worker.ExchangeCycle,
	planner *worker.Planner,
	tasks *worker.TaskWorker,
	log logger.Logger,
) *EngineHandler {
	return &EngineHandler{
		exchange: exchange,
		planner:  planner,
		tasks:    tasks,
		logger:   log,
	}
}

// RunExchangeCycle executes one exchange cycle for the user. Recoverable
// outcomes (no capacity, no match, placement failure) are 200s with a
// status body; only infrastructure failures are 5xx.
func (h *EngineHandler) RunExchangeCycle(c *gin.Context) {
	userID := c.Param("userId")

	result, err := h.exchange.Run(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Exchange cycle failed",
			logger.String("user_id", userID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "exchange cycle failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GeneratePlan builds and persists a backlink plan.
func (h *EngineHandler) GeneratePlan(c *gin.Context) {
	var req worker.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == "" || req.WebsiteURL == "" || req.Quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id, website_url and a positive quantity are required"})
		return
	}

	plan, err := h.planner.GeneratePlan(c.Request.Context(), req)
	if err != nil {
		h.logger.Warn("Plan generation rejected",
			logger.String("user_id", req.UserID), logger.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, plan)
}

// RunWorkerCycle processes at most one due task for the user.
func (h *EngineHandler) RunWorkerCycle(c *gin.Context) {
	userID := c.Param("userId")

	result, err := h.tasks.RunCycle(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Worker cycle failed",
			logger.String("user_id", userID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "worker cycle failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// QueueStats returns the user's task queue summary.
func (h *EngineHandler) QueueStats(c *gin.Context) {
	userID := c.Param("userId")

	stats, err := h.tasks.QueueStats(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Queue stats failed",
			logger.String("user_id", userID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "queue stats failed"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// RequeueTask moves a failed or manual task back to pending.
func (h *EngineHandler) RequeueTask(c *gin.Context) {
	id := c.Param("id")

	err := h.tasks.Requeue(c.Request.Context(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.Is(err, repository.ErrRetriesExhausted):
		c.JSON(http.StatusConflict, gin.H{"error": "task retries exhausted"})
	case err != nil:
		h.logger.Error("Requeue failed", logger.String("task_id", id), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "requeue failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "pending"})
	}
}
