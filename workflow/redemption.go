package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rewardhub/backend/ledger"
	"github.com/rewardhub/backend/metrics"
	"github.com/rewardhub/backend/repository"
	"github.com/rewardhub/backend/repository/models"
)

// RedemptionService runs the reward-redemption workflow.
type RedemptionService struct {
	repo    *repository.Repository
	gateway ledger.Gateway
	logger  *slog.Logger
}

func NewRedemptionService(repo *repository.Repository, gateway ledger.Gateway, logger *slog.Logger) *RedemptionService {
	return &RedemptionService{repo: repo, gateway: gateway, logger: logger}
}

// RedemptionOutcome reports the persisted redemption. LedgerErr is non-nil
// when the ledger call raised; a failed row is still written for audit.
type RedemptionOutcome struct {
	Redemption       *models.Redemption
	RemainingBalance int64
	LedgerErr        error
}

// SpendableBalance recomputes a student's balance from award and redemption
// history: confirmed awards earn, approved redemptions spend. Derived on
// every call; there is no stored running balance to drift.
func (s *RedemptionService) SpendableBalance(studentID string) (int64, *repository.RepositoryError) {
	earned, repoErr := s.repo.ConfirmedRewardSum(studentID)
	if repoErr != nil {
		return 0, repoErr
	}
	spent, repoErr := s.repo.ApprovedCostSum(studentID)
	if repoErr != nil {
		return 0, repoErr
	}
	return earned - spent, nil
}

// Redeem checks the derived balance, executes the ledger redeem under the
// student's own signing identity, and persists the outcome. The balance
// check is advisory; the ledger's own balance is the ultimate authority.
func (s *RedemptionService) Redeem(ctx context.Context, student *models.User, rewardID string) (*RedemptionOutcome, *repository.RepositoryError) {
	if !student.HasWallet() {
		return nil, &repository.RepositoryError{
			Code:    repository.CodeUnauthorized,
			Message: "wallet not connected",
			Detail:  "link a wallet before redeeming rewards",
		}
	}

	reward, repoErr := s.repo.GetReward(rewardID)
	if repoErr != nil {
		return nil, repoErr
	}

	balance, repoErr := s.SpendableBalance(student.ID)
	if repoErr != nil {
		return nil, repoErr
	}
	if balance < reward.TokenCost {
		return nil, &repository.RepositoryError{
			Code:    repository.CodeInsufficientBalance,
			Message: "not enough tokens",
			Detail:  fmt.Sprintf("balance %d, reward costs %d", balance, reward.TokenCost),
		}
	}

	// Redemptions are signed by the student's wallet, not the service key:
	// the contract resolves the redeeming student from the sender.
	signer, err := s.gateway.StudentSigner(*student.WalletAddress)
	if err == nil {
		var txHash string
		txHash, err = s.gateway.Redeem(ctx, signer, reward.Title)
		if err == nil {
			return s.persist(student.ID, reward, models.RedemptionStatusApproved, &txHash, balance, nil)
		}
	}
	return s.persist(student.ID, reward, models.RedemptionStatusFailed, nil, balance, err)
}

func (s *RedemptionService) persist(studentID string, reward *models.Reward, status string, txHash *string, balanceBefore int64, cause error) (*RedemptionOutcome, *repository.RepositoryError) {
	red := &models.Redemption{
		StudentID: studentID,
		RewardID:  reward.ID,
		Status:    status,
		TxHash:    txHash,
	}
	if repoErr := s.repo.CreateRedemption(red); repoErr != nil {
		return nil, repoErr
	}
	metrics.Redemptions.WithLabelValues(status).Inc()

	remaining := balanceBefore
	if status == models.RedemptionStatusApproved {
		remaining = balanceBefore - reward.TokenCost
		s.logger.Info("reward redeemed", "student", studentID, "reward", reward.Title, "tx", *txHash)
	} else {
		s.logger.Warn("redemption resolved as failed", "student", studentID, "reward", reward.Title, "err", cause)
	}
	return &RedemptionOutcome{Redemption: red, RemainingBalance: remaining, LedgerErr: cause}, nil
}
