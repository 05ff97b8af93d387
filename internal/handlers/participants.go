// Package handlers exposes the engine over HTTP.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ranklite/backlink-engine/internal/logger"
	"github.com/ranklite/backlink-engine/internal/models"
	"github.com/ranklite/backlink-engine/internal/repository"
	"github.com/ranklite/backlink-engine/internal/verification"
)

// ParticipantHandler serves exchange participant registration and
// verification.
type ParticipantHandler struct {
	participants *repository.ParticipantRepository
	verifier     *verification.Service
	logger       logger.Logger
}

func NewParticipantHandler(
	participants *repository.ParticipantRepository,
	verifier *verification.Service,
	log logger.Logger,
) *ParticipantHandler {
	return &ParticipantHandler{
		participants: participants,
		verifier:     verifier,
		logger:       log,
	}
}

type registerRequest struct {
	UserID               string     `binding:"required" json:"user_id"`
	SiteID               string     `binding:"required" json:"site_id"`
	SiteURL              string     `binding:"required" json:"site_url"`
	DomainRating         int        `json:"domain_rating"`
	MonthlyTraffic       int        `json:"monthly_traffic"`
	Niche                string     `json:"niche"`
	VerificationMethod   string     `binding:"required" json:"verification_method"`
	AutoExchangeEnabled  bool       `json:"auto_exchange_enabled"`
	MinDRPreference      int        `json:"min_dr_preference"`
	MinTrafficPreference int        `json:"min_traffic_preference"`
	NichePreference      []string   `json:"niche_preference"`
	DomainCreatedAt      *time.Time `json:"domain_created_at"`
}

// Register creates a participant and returns its verification token once.
// The token is immutable and is never exposed again.
func (h *ParticipantHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := &models.Participant{
		UserID:               req.UserID,
		SiteID:               req.SiteID,
		SiteURL:              req.SiteURL,
		DomainRating:         req.DomainRating,
		MonthlyTraffic:       req.MonthlyTraffic,
		Niche:                req.Niche,
		VerificationMethod:   models.VerificationMethod(req.VerificationMethod),
		IsActive:             true,
		AutoExchangeEnabled:  req.AutoExchangeEnabled,
		MinDRPreference:      req.MinDRPreference,
		MinTrafficPreference: req.MinTrafficPreference,
		NichePreference:      req.NichePreference,
		DomainCreatedAt:      req.DomainCreatedAt,
	}

	if err := h.participants.Create(c.Request.Context(), p); err != nil {
		h.logger.Error("Failed to register participant", logger.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"participant":        p,
		"verification_token": p.VerificationToken,
	})
}

// Verify runs the participant's ownership proof.
func (h *ParticipantHandler) Verify(c *gin.Context) {
	id := c.Param("id")

	verified, err := h.verifier.Verify(c.Request.Context(), id)
	if errors.Is(err, verification.ErrAlreadyVerified) {
		c.JSON(http.StatusOK, gin.H{"verified": true, "status": models.VerificationVerified})
		return
	}
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "participant not found"})
		return
	}
	if err != nil {
		h.logger.Error("Verification failed", logger.String("participant_id", id), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification error"})
		return
	}

	status := models.VerificationFailed
	if verified {
		status = models.VerificationVerified
	}
	c.JSON(http.StatusOK, gin.H{"verified": verified, "status": status})
}

// RetryVerification moves a failed participant back to pending.
func (h *ParticipantHandler) RetryVerification(c *gin.Context) {
	id := c.Param("id")

	if err := h.verifier.Retry(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "participant not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": models.VerificationPending})
}

// SetActive enables or disables exchange participation. Participants are
// deactivated, never deleted.
func (h *ParticipantHandler) SetActive(c *gin.Context) {
	id := c.Param("id")

	var req struct {
		Active *bool `binding:"required" json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.participants.SetActive(c.Request.Context(), id, *req.Active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "participant not found"})
			return
		}
		h.logger.Error("Failed to update participant", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"active": *req.Active})
}

// List returns a user's participants.
func (h *ParticipantHandler) List(c *gin.Context) {
	userID := c.Param("userId")

	participants, err := h.participants.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list participants", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"participants": participants})
}
