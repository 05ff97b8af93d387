package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ranklite/backlink-engine/internal/ledger"
	"github.com/ranklite/backlink-engine/internal/logger"
	"github.com/ranklite/backlink-engine/internal/models"
	"github.com/ranklite/backlink-engine/internal/repository"
)

// CreditHandler serves participant credit balances and manual ledger
// operations.
type CreditHandler struct {
	ledger *ledger.Ledger
	links  *repository.LinkRepository
	logger logger.Logger
}

func NewCreditHandler(creditLedger *ledger.Ledger, links *repository.LinkRepository, log logger.Logger) *CreditHandler {
	return &CreditHandler{
		ledger: creditLedger,
		links:  links,
		logger: log,
	}
}

// Balance returns the participant's stored credit balance.
func (h *CreditHandler) Balance(c *gin.Context) {
	id := c.Param("id")

	balance, err := h.ledger.Balance(c.Request.Context(), id)
	if errors.Is(err, ledger.ErrParticipantMissing) {
		c.JSON(http.StatusNotFound, gin.H{"error": "participant not found"})
		return
	}
	if err != nil {
		h.logger.Error("Balance lookup failed", logger.String("participant_id", id), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"participant_id": id, "credits": balance})
}

type creditRequest struct {
	Amount      int    `binding:"required" json:"amount"`
	Type        string `binding:"required" json:"type"`
	Description string `json:"description"`
}

// Apply records a purchase or manual adjustment. Exchange legs never come
// through here; they settle atomically inside the cycle.
func (h *CreditHandler) Apply(c *gin.Context) {
	id := c.Param("id")

	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txType := models.TransactionType(req.Type)
	if txType != models.TxPurchase && txType != models.TxAdjustment {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be purchase or adjustment"})
		return
	}

	balance, err := h.ledger.Apply(c.Request.Context(), id, req.Amount, txType, nil, req.Description)
	if errors.Is(err, ledger.ErrParticipantMissing) {
		c.JSON(http.StatusNotFound, gin.H{"error": "participant not found"})
		return
	}
	if err != nil {
		h.logger.Error("Credit apply failed", logger.String("participant_id", id), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "credit operation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"participant_id": id, "credits": balance})
}

// Reconcile verifies the participant's balance against the transaction log.
func (h *CreditHandler) Reconcile(c *gin.Context) {
	id := c.Param("id")

	err := h.ledger.Reconcile(c.Request.Context(), id)
	switch {
	case errors.Is(err, ledger.ErrParticipantMissing):
		c.JSON(http.StatusNotFound, gin.H{"error": "participant not found"})
	case err != nil:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"participant_id": id, "consistent": true})
	}
}

// GetLink returns one placed exchange link.
func (h *CreditHandler) GetLink(c *gin.Context) {
	id := c.Param("id")

	link, err := h.links.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "link not found"})
		return
	}
	if err != nil {
		h.logger.Error("Link lookup failed", logger.String("link_id", id), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "link lookup failed"})
		return
	}

	c.JSON(http.StatusOK, link)
}
