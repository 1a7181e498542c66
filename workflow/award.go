// Package workflow orchestrates the operations that span the database and
// the token ledger. The database row is always written before the ledger is
// touched and resolved after, in that order, so a crash mid-flight leaves a
// discoverable pending record rather than a silent orphaned transaction.
package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/rewardhub/backend/ledger"
	"github.com/rewardhub/backend/metrics"
	"github.com/rewardhub/backend/repository"
	"github.com/rewardhub/backend/repository/models"
)

// AwardService runs the achievement-award reconciliation workflow.
type AwardService struct {
	repo    *repository.Repository
	gateway ledger.Gateway
	logger  *slog.Logger
}

func NewAwardService(repo *repository.Repository, gateway ledger.Gateway, logger *slog.Logger) *AwardService {
	return &AwardService{repo: repo, gateway: gateway, logger: logger}
}

// AwardRequest identifies who awards what to whom.
type AwardRequest struct {
	StudentID     string
	AchievementID string
	AwardedBy     string
}

// AwardOutcome reports the resolved award. LedgerErr is non-nil when the
// record resolved to failed because a ledger call raised; the record is
// still returned so the caller is never left unaware of the inconsistency.
type AwardOutcome struct {
	Award         *models.StudentAward
	TokensAwarded int64
	StudentWallet string
	LedgerErr     error
}

// Award validates preconditions, writes the pending intent row, performs at
// most one catalog bootstrap write plus one grant, and resolves the row to
// confirmed or failed. Precondition and database failures return before any
// ledger call; ledger failures never propagate past this boundary.
func (s *AwardService) Award(ctx context.Context, req AwardRequest) (*AwardOutcome, *repository.RepositoryError) {
	achievement, repoErr := s.repo.GetAchievement(req.AchievementID)
	if repoErr != nil {
		return nil, repoErr
	}

	student, repoErr := s.repo.GetUserByID(req.StudentID)
	if repoErr != nil {
		return nil, repoErr
	}
	if student.Role != models.RoleStudent {
		return nil, &repository.RepositoryError{
			Code:    repository.CodeValidation,
			Message: "user is not a student",
			Detail:  "only students can receive achievements",
		}
	}
	if !student.HasWallet() {
		return nil, &repository.RepositoryError{
			Code:    repository.CodeUnauthorized,
			Message: "student has not connected their wallet",
			Detail:  "ask the student to link a wallet before awarding achievements",
		}
	}

	existing, repoErr := s.repo.FindActiveAward(req.StudentID, req.AchievementID)
	if repoErr != nil {
		return nil, repoErr
	}
	if existing != nil {
		return nil, &repository.RepositoryError{
			Code:    repository.CodeConflict,
			Message: "this achievement has already been awarded to this student",
			Detail:  "existing award status: " + existing.Status,
		}
	}

	award := &models.StudentAward{
		StudentID:     req.StudentID,
		AchievementID: req.AchievementID,
		DateAwarded:   time.Now(),
	}
	if req.AwardedBy != "" {
		award.AwardedBy = &req.AwardedBy
	}
	// The pending row must exist before any ledger write is attempted. A
	// concurrent duplicate loses here at the unique index.
	if repoErr := s.repo.CreatePendingAward(award); repoErr != nil {
		return nil, repoErr
	}

	wallet := *student.WalletAddress

	// Catalog bootstrap: the grant reverts for an unknown title, so mirror
	// the entry first. A bootstrap failure short-circuits to failed without
	// attempting the grant.
	exists, err := s.gateway.CatalogEntryExists(ctx, ledger.KindAchievement, achievement.Title)
	if err == nil && !exists {
		var bootstrapTx string
		bootstrapTx, err = s.gateway.AddCatalogEntry(ctx, ledger.KindAchievement, achievement.Title, achievement.TokenReward)
		if err == nil {
			s.markMirrored(achievement, bootstrapTx)
		}
	}
	if err != nil {
		return s.resolveFailed(award, wallet, err), nil
	}

	txHash, err := s.gateway.Grant(ctx, wallet, achievement.Title)
	if err != nil {
		return s.resolveFailed(award, wallet, err), nil
	}

	if repoErr := s.repo.ResolveAward(award.ID, models.AwardStatusConfirmed, &txHash); repoErr != nil {
		// The mint is committed on-chain; surface the unresolved row rather
		// than hiding the partial success.
		s.logger.Error("award confirmed on-chain but database resolve failed",
			"award", award.ID, "tx", txHash, "err", repoErr)
		return nil, repoErr
	}

	award.Status = models.AwardStatusConfirmed
	award.TxHash = &txHash
	metrics.Awards.WithLabelValues(models.AwardStatusConfirmed).Inc()
	s.logger.Info("achievement awarded",
		"student", student.Email, "achievement", achievement.Title,
		"tokens", achievement.TokenReward, "tx", txHash)

	return &AwardOutcome{
		Award:         award,
		TokensAwarded: achievement.TokenReward,
		StudentWallet: wallet,
	}, nil
}

func (s *AwardService) resolveFailed(award *models.StudentAward, wallet string, cause error) *AwardOutcome {
	if repoErr := s.repo.ResolveAward(award.ID, models.AwardStatusFailed, nil); repoErr != nil {
		s.logger.Error("failed to mark award as failed", "award", award.ID, "err", repoErr)
	}
	award.Status = models.AwardStatusFailed
	award.TxHash = nil
	metrics.Awards.WithLabelValues(models.AwardStatusFailed).Inc()
	s.logger.Warn("award resolved as failed", "award", award.ID, "wallet", wallet, "err", cause)
	return &AwardOutcome{Award: award, StudentWallet: wallet, LedgerErr: cause}
}

// markMirrored records a successful catalog bootstrap on the database entry.
// Best effort: the on-chain existence check is authoritative either way.
func (s *AwardService) markMirrored(achievement *models.Achievement, txHash string) {
	achievement.OnChainCreated = true
	achievement.OnChainTx = &txHash
	if repoErr := s.repo.UpdateAchievement(achievement); repoErr != nil {
		s.logger.Warn("could not record on-chain mirror state", "achievement", achievement.ID, "err", repoErr)
	}
}
