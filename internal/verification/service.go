package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/ranklite/backlink-engine/internal/events"
	"github.com/ranklite/backlink-engine/internal/logger"
	"github.com/ranklite/backlink-engine/internal/models"
	"github.com/ranklite/backlink-engine/internal/repository"
)

// ErrAlreadyVerified is returned when verifying a participant that has
// already passed.
var ErrAlreadyVerified = errors.New("participant already verified")

// Service drives the participant verification state machine:
// pending -> verified on success, pending -> failed on failure, and
// failed -> pending on retry.
type Service struct {
	participants *repository.ParticipantRepository
	metaTag      Verifier
	dns          Verifier
	integrations IntegrationStore
	publisher    *events.Publisher
	logger       logger.Logger
}

func NewService(
	participants *repository.ParticipantRepository,
	metaTag Verifier,
	dns Verifier,
	integrations IntegrationStore,
	publisher *events.Publisher,
	log logger.Logger,
) *Service {
	return &Service{
		participants: participants,
		metaTag:      metaTag,
		dns:          dns,
		integrations: integrations,
		publisher:    publisher,
		logger:       log,
	}
}

// Verify runs the participant's chosen proof method and records the
// resulting state. The bool reports whether the proof passed.
func (s *Service) Verify(ctx context.Context, participantID string) (bool, error) {
	p, err := s.participants.GetByID(ctx, participantID)
	if err != nil {
		return false, fmt.Errorf("load participant: %w", err)
	}
	if p.VerificationStatus == models.VerificationVerified {
		return true, ErrAlreadyVerified
	}

	verified := s.runMethod(ctx, p)

	status := models.VerificationFailed
	if verified {
		status = models.VerificationVerified
	}
	if err := s.participants.SetVerificationStatus(ctx, p.ID, status); err != nil {
		return false, fmt.Errorf("record verification result: %w", err)
	}

	if verified {
		if err := s.publisher.Publish(ctx, events.Event{
			EventType: events.EventParticipantVerified,
			UserID:    p.UserID,
			SubjectID: p.ID,
			Detail:    string(p.VerificationMethod),
		}); err != nil {
			s.logger.Warn("Failed to publish verification event", logger.Error(err))
		}
	}

	s.logger.Info("Verification attempt finished",
		logger.String("participant_id", p.ID),
		logger.String("method", string(p.VerificationMethod)),
		logger.Bool("verified", verified),
	)

	return verified, nil
}

// Retry moves a failed participant back to pending so a user can fix the
// proof and try again.
func (s *Service) Retry(ctx context.Context, participantID string) error {
	p, err := s.participants.GetByID(ctx, participantID)
	if err != nil {
		return fmt.Errorf("load participant: %w", err)
	}
	if p.VerificationStatus != models.VerificationFailed {
		return fmt.Errorf("participant %s is %s, only failed participants can be retried",
			p.ID, p.VerificationStatus)
	}
	return s.participants.SetVerificationStatus(ctx, p.ID, models.VerificationPending)
}

func (s *Service) runMethod(ctx context.Context, p *models.Participant) bool {
	switch p.VerificationMethod {
	case models.MethodMetaTag:
		return s.metaTag.Verify(ctx, p.SiteURL, p.VerificationToken)
	case models.MethodDNSRecord:
		return s.dns.Verify(ctx, p.SiteURL, p.VerificationToken)
	case models.MethodAPI:
		return NewAPIVerifier(s.integrations, p.UserID, p.SiteID).
			Verify(ctx, p.SiteURL, p.VerificationToken)
	default:
		s.logger.Warn("Unknown verification method",
			logger.String("participant_id", p.ID),
			logger.String("method", string(p.VerificationMethod)),
		)
		return false
	}
}
