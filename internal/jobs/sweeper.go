package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lateshift-app/afterhours-server/internal/audit"
	"github.com/lateshift-app/afterhours-server/internal/config"
	"github.com/lateshift-app/afterhours-server/internal/external"
	"github.com/lateshift-app/afterhours-server/internal/repository"
)

const sweepTimeout = 30 * time.Second

// Sweeper finalizes sessions past expiry and reclaims ephemeral state.
// Every step is idempotent: a failed tick logs and simply retries
// wholesale on the next schedule.
type Sweeper struct {
	sessionRepo repository.SessionRepository
	connRepo    repository.ConnectionRepository
	notifier    external.Notifier
	interval    time.Duration
	grace       time.Duration
	retention   time.Duration
	done        chan struct{}
}

func NewSweeper(
	sessionRepo repository.SessionRepository,
	connRepo repository.ConnectionRepository,
	notifier external.Notifier,
	interval time.Duration,
	grace time.Duration,
	retention time.Duration,
) *Sweeper {
	return &Sweeper{
		sessionRepo: sessionRepo,
		connRepo:    connRepo,
		notifier:    notifier,
		interval:    interval,
		grace:       grace,
		retention:   retention,
		done:        make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.run()
	log.Info().Dur("interval", s.interval).Msg("expiry sweeper started")
}

func (s *Sweeper) Stop() {
	close(s.done)
	log.Info().Msg("expiry sweeper stopped")
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one full tick. Converted connections' remnants are purged on
// their own retention schedule, never by the open-connection grace purge:
// conversion already copied what matters.
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	s.notifyExpiringSoon(ctx)

	s.runStep(ctx, "expired sessions", func(ctx context.Context) (int64, error) {
		return s.sessionRepo.ExpireOverdue(ctx)
	})
	s.runStep(ctx, "unconverted connections", func(ctx context.Context) (int64, error) {
		return s.connRepo.DeleteExpired(ctx, s.grace)
	})
	s.runStep(ctx, "converted remnants", func(ctx context.Context) (int64, error) {
		return s.connRepo.DeleteConvertedBefore(ctx, time.Now().Add(-s.retention))
	})
	s.runStep(ctx, "ended sessions", func(ctx context.Context) (int64, error) {
		return s.sessionRepo.DeleteEndedBefore(ctx, time.Now().Add(-s.retention))
	})
}

func (s *Sweeper) runStep(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("sweep failed for %s", name)
		return
	}
	if count > 0 {
		audit.Log(audit.Event{
			Type:    audit.EventSweepPurge,
			Details: map[string]interface{}{"step": name, "count": count},
		})
		log.Info().Int64("count", count).Msgf("swept %s", name)
	}
}

func (s *Sweeper) notifyExpiringSoon(ctx context.Context) {
	sessions, err := s.sessionRepo.ListExpiringSoon(ctx, config.ExpiryWarningWindow)
	if err != nil {
		log.Error().Err(err).Msg("sweep failed to list expiring sessions")
		return
	}

	for _, session := range sessions {
		s.notifier.Notify(ctx, session.UserID, external.EventSessionExpiringSoon, map[string]string{
			"sessionId": session.ID,
			"expiresAt": session.ExpiresAt.Format(time.RFC3339),
		})
		if err := s.sessionRepo.MarkExpiryNotified(ctx, session.ID); err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID).Msg("failed to mark expiry notice sent")
		}
	}

	if len(sessions) > 0 {
		log.Info().Int("count", len(sessions)).Msg("sent session expiry notices")
	}
}
