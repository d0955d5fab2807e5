package service

import (
	"context"
	"time"

	"settlement-engine/internal/core/domain"
	"settlement-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const auditWriteTimeout = 5 * time.Second

type auditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
	now  func() time.Time
}

// NewAuditService creates the audit trail writer. With a nil repo entries
// only reach the log.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) ports.AuditService {
	return &auditService{repo: repo, log: log, now: time.Now}
}

// Log records entry in the background. The write outlives the request that
// triggered it, so it runs on a detached context with its own deadline.
// Persistence failures are logged, never returned.
func (s *auditService) Log(ctx context.Context, entry *domain.AuditLog) {
	rec := *entry
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	writeCtx := context.WithoutCancel(ctx)

	go func() {
		ev := s.log.Info().
			Str("audit_id", rec.ID.String()).
			Str("action", string(rec.Action)).
			Str("resource_type", rec.ResourceType).
			Str("resource_id", rec.ResourceID)
		if rec.UserID != nil {
			ev = ev.Str("user_id", rec.UserID.String())
		}
		if rec.IPAddress != "" {
			ev = ev.Str("ip", rec.IPAddress)
		}
		ev.Msg("audit")

		if s.repo == nil {
			return
		}
		ctx, cancel := context.WithTimeout(writeCtx, auditWriteTimeout)
		defer cancel()
		if err := s.repo.Create(ctx, &rec); err != nil {
			s.log.Warn().Err(err).
				Str("audit_id", rec.ID.String()).
				Str("action", string(rec.Action)).
				Msg("failed to persist audit log")
		}
	}()
}
