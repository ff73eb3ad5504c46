package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/repository"
)

// RetentionSweep prunes messages older than the retention window and drops
// sessions it empties. It runs once, at startup; conversations on a
// long-lived process age past the window until the next restart.
type RetentionSweep struct {
	repo          repository.ConversationRepository
	retentionDays int
	logger        zerolog.Logger
}

func NewRetentionSweep(repo repository.ConversationRepository, retentionDays int, logger zerolog.Logger) *RetentionSweep {
	return &RetentionSweep{
		repo:          repo,
		retentionDays: retentionDays,
		logger:        logger.With().Str("component", "retention").Logger(),
	}
}

// Run deletes everything older than the window and reports how many messages
// went. Failures are logged and swallowed; a failed sweep must not stop the
// server from coming up.
func (s *RetentionSweep) Run(ctx context.Context) int64 {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)

	removed, err := s.repo.DeleteOldMessages(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("retention sweep failed")
		return 0
	}
	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Time("cutoff", cutoff).
			Msg("pruned expired messages")
	}
	return removed
}
