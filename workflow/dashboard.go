package workflow

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rewardhub/backend/ledger"
	"github.com/rewardhub/backend/repository"
	"github.com/rewardhub/backend/repository/models"
)

const topHolderCount = 10

// DashboardService aggregates database counts with ledger-wide reads.
type DashboardService struct {
	repo    *repository.Repository
	gateway ledger.Gateway
	logger  *slog.Logger
}

func NewDashboardService(repo *repository.Repository, gateway ledger.Gateway, logger *slog.Logger) *DashboardService {
	return &DashboardService{repo: repo, gateway: gateway, logger: logger}
}

// HolderBalance is one student's on-chain balance for the top-holder list.
type HolderBalance struct {
	StudentID     string  `json:"studentId"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	WalletAddress string  `json:"walletAddress"`
	Balance       float64 `json:"balance"`
}

// Stats is the aggregated dashboard payload. Ledger fields degrade to
// zero/empty when the ledger is unreachable; database fields are always
// populated.
type Stats struct {
	TotalAchievements       int64           `json:"totalAchievements"`
	TotalPerks              int64           `json:"totalPerks"`
	TotalRegisteredStudents int64           `json:"totalRegisteredStudents"`
	TotalRegisteredFaculty  int64           `json:"totalRegisteredFaculty"`
	StudentsWithNoWallet    int64           `json:"studentsWithNoWallet"`
	TotalTokensRedeemed     int64           `json:"totalTokensRedeemed"`
	TotalTokensOnLedger     float64         `json:"totalTokensAvailableInBlockchain"`
	TotalTokensDistributed  float64         `json:"totalTokensDistributedToStudents"`
	TopHolders              []HolderBalance `json:"topHolders"`
	Timestamp               time.Time       `json:"timestamp"`
}

// Stats builds the dashboard. Database statistics fail the request; ledger
// statistics never do.
func (s *DashboardService) Stats(ctx context.Context) (*Stats, *repository.RepositoryError) {
	stats := &Stats{TopHolders: []HolderBalance{}, Timestamp: time.Now().UTC()}

	var repoErr *repository.RepositoryError
	if stats.TotalAchievements, repoErr = s.repo.CountAchievements(); repoErr != nil {
		return nil, repoErr
	}
	if stats.TotalPerks, repoErr = s.repo.CountRewards(); repoErr != nil {
		return nil, repoErr
	}
	if stats.TotalRegisteredStudents, repoErr = s.repo.CountUsersByRole(models.RoleStudent); repoErr != nil {
		return nil, repoErr
	}
	if stats.TotalRegisteredFaculty, repoErr = s.repo.CountUsersByRole(models.RoleFaculty); repoErr != nil {
		return nil, repoErr
	}
	if stats.StudentsWithNoWallet, repoErr = s.repo.CountStudentsWithoutWallet(); repoErr != nil {
		return nil, repoErr
	}
	if stats.TotalTokensRedeemed, repoErr = s.repo.TotalTokensRedeemed(); repoErr != nil {
		return nil, repoErr
	}

	supply, err := s.gateway.GetTotalSupply(ctx)
	if err != nil {
		// Ledger unreachable: the whole ledger section degrades to
		// zero/empty and the request still succeeds.
		s.logger.Warn("ledger statistics unavailable", "err", err)
		return stats, nil
	}
	stats.TotalTokensOnLedger = supply

	students, repoErr := s.repo.WalletStudents()
	if repoErr != nil {
		return nil, repoErr
	}

	holders := s.fetchBalances(ctx, students)
	for _, h := range holders {
		stats.TotalTokensDistributed += h.Balance
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].Balance > holders[j].Balance })
	if len(holders) > topHolderCount {
		holders = holders[:topHolderCount]
	}
	stats.TopHolders = holders
	return stats, nil
}

// fetchBalances reads every student balance concurrently. A failed read
// degrades that one student to zero without failing the batch.
func (s *DashboardService) fetchBalances(ctx context.Context, students []models.User) []HolderBalance {
	holders := make([]HolderBalance, len(students))
	var wg sync.WaitGroup
	for i, student := range students {
		wg.Add(1)
		go func(i int, student models.User) {
			defer wg.Done()
			h := HolderBalance{
				StudentID:     student.ID,
				Name:          student.Name,
				Email:         student.Email,
				WalletAddress: *student.WalletAddress,
			}
			balance, err := s.gateway.GetBalance(ctx, h.WalletAddress)
			if err != nil {
				s.logger.Warn("balance read failed", "student", student.Email, "err", err)
			} else {
				h.Balance = balance.Human
			}
			holders[i] = h
		}(i, student)
	}
	wg.Wait()
	return holders
}
