package workflow

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rewardhub/backend/ledger"
	"github.com/rewardhub/backend/repository"
	"github.com/rewardhub/backend/repository/models"
)

func newAwardService(repo *repository.Repository, gw ledger.Gateway) *AwardService {
	return NewAwardService(repo, gw, slog.New(slog.DiscardHandler))
}

func TestAwardHappyPath(t *testing.T) {
	repo := newTestRepo(t)
	gw := &fakeGateway{}
	svc := newAwardService(repo, gw)

	student := seedStudent(t, repo, "alice@campus.edu")
	achievement := seedAchievement(t, repo, "Dean's List", 100)

	outcome, repoErr := svc.Award(context.Background(), AwardRequest{
		StudentID:     student.ID,
		AchievementID: achievement.ID,
	})
	require.Nil(t, repoErr)
	require.NoError(t, outcome.LedgerErr)
	require.Equal(t, models.AwardStatusConfirmed, outcome.Award.Status)
	require.NotNil(t, outcome.Award.TxHash)
	require.Equal(t, fakeTxHash, *outcome.Award.TxHash)
	require.Equal(t, int64(100), outcome.TokensAwarded)
	require.Equal(t, *student.WalletAddress, outcome.StudentWallet)
	require.Len(t, gw.grantCalls, 1)

	earned, repoErr := repo.ConfirmedRewardSum(student.ID)
	require.Nil(t, repoErr)
	require.Equal(t, int64(100), earned)
}

func TestAwardRejectsDuplicate(t *testing.T) {
	repo := newTestRepo(t)
	svc := newAwardService(repo, &fakeGateway{})

	student := seedStudent(t, repo, "bob@campus.edu")
	achievement := seedAchievement(t, repo, "Hackathon Winner", 150)
	req := AwardRequest{StudentID: student.ID, AchievementID: achievement.ID}

	_, repoErr := svc.Award(context.Background(), req)
	require.Nil(t, repoErr)

	_, repoErr = svc.Award(context.Background(), req)
	require.NotNil(t, repoErr)
	require.Equal(t, repository.CodeConflict, repoErr.Code)
}

func TestAwardRetryAfterFailureSucceeds(t *testing.T) {
	repo := newTestRepo(t)
	gw := &fakeGateway{grantFn: func(_, _ string) (string, error) {
		return "", errors.New("rpc unreachable")
	}}
	svc := newAwardService(repo, gw)

	student := seedStudent(t, repo, "carol@campus.edu")
	achievement := seedAchievement(t, repo, "Quiz Champion", 75)
	req := AwardRequest{StudentID: student.ID, AchievementID: achievement.ID}

	outcome, repoErr := svc.Award(context.Background(), req)
	require.Nil(t, repoErr)
	require.Error(t, outcome.LedgerErr)
	require.Equal(t, models.AwardStatusFailed, outcome.Award.Status)
	require.Nil(t, outcome.Award.TxHash)

	// A failed award does not hold the unique slot; the retry goes through.
	gw.grantFn = nil
	outcome, repoErr = svc.Award(context.Background(), req)
	require.Nil(t, repoErr)
	require.NoError(t, outcome.LedgerErr)
	require.Equal(t, models.AwardStatusConfirmed, outcome.Award.Status)

	awards, listErr := repo.ListAwards(repository.AwardFilter{StudentID: student.ID})
	require.Nil(t, listErr)
	require.Len(t, awards, 2)
}

func TestAwardBootstrapsMissingCatalogEntry(t *testing.T) {
	repo := newTestRepo(t)
	gw := &fakeGateway{existsFn: func(_ ledger.CatalogKind, _ string) (bool, error) {
		return false, nil
	}}
	svc := newAwardService(repo, gw)

	student := seedStudent(t, repo, "dave@campus.edu")
	achievement := seedAchievement(t, repo, "Quiz Champion", 75)

	outcome, repoErr := svc.Award(context.Background(), AwardRequest{
		StudentID:     student.ID,
		AchievementID: achievement.ID,
	})
	require.Nil(t, repoErr)
	require.NoError(t, outcome.LedgerErr)

	// The catalog entry is mirrored before the grant runs.
	require.Equal(t, []string{"Quiz Champion"}, gw.addCalls)
	require.Len(t, gw.grantCalls, 1)

	mirrored, lookupErr := repo.GetAchievement(achievement.ID)
	require.Nil(t, lookupErr)
	require.True(t, mirrored.OnChainCreated)
}

func TestAwardBootstrapFailureShortCircuits(t *testing.T) {
	repo := newTestRepo(t)
	gw := &fakeGateway{
		existsFn: func(_ ledger.CatalogKind, _ string) (bool, error) { return false, nil },
		addFn: func(_ ledger.CatalogKind, _ string, _ int64) (string, error) {
			return "", errors.New("add reverted")
		},
	}
	svc := newAwardService(repo, gw)

	student := seedStudent(t, repo, "erin@campus.edu")
	achievement := seedAchievement(t, repo, "Dean's List", 100)

	outcome, repoErr := svc.Award(context.Background(), AwardRequest{
		StudentID:     student.ID,
		AchievementID: achievement.ID,
	})
	require.Nil(t, repoErr)
	require.Error(t, outcome.LedgerErr)
	require.Equal(t, models.AwardStatusFailed, outcome.Award.Status)
	require.Empty(t, gw.grantCalls)
}

func TestAwardRequiresStudentRoleAndWallet(t *testing.T) {
	repo := newTestRepo(t)
	svc := newAwardService(repo, &fakeGateway{})
	achievement := seedAchievement(t, repo, "Dean's List", 100)

	faculty := &models.User{Name: "Prof", Email: "prof@campus.edu", Password: "x", Role: models.RoleFaculty}
	require.Nil(t, repo.CreateUser(faculty))
	_, repoErr := svc.Award(context.Background(), AwardRequest{
		StudentID: faculty.ID, AchievementID: achievement.ID,
	})
	require.NotNil(t, repoErr)
	require.Equal(t, repository.CodeValidation, repoErr.Code)

	noWallet := &models.User{Name: "New Student", Email: "new@campus.edu", Password: "x", Role: models.RoleStudent}
	require.Nil(t, repo.CreateUser(noWallet))
	_, repoErr = svc.Award(context.Background(), AwardRequest{
		StudentID: noWallet.ID, AchievementID: achievement.ID,
	})
	require.NotNil(t, repoErr)
	require.Equal(t, repository.CodeUnauthorized, repoErr.Code)
}

func TestAwardLedgerFailureLeavesSingleFailedRecord(t *testing.T) {
	repo := newTestRepo(t)
	gw := &fakeGateway{grantFn: func(_, _ string) (string, error) {
		return "", &ledger.WriteError{Op: "grantAchievement", Reason: "timeout", OutcomeUnknown: true}
	}}
	svc := newAwardService(repo, gw)

	student := seedStudent(t, repo, "frank@campus.edu")
	achievement := seedAchievement(t, repo, "Hackathon Winner", 150)

	outcome, repoErr := svc.Award(context.Background(), AwardRequest{
		StudentID:     student.ID,
		AchievementID: achievement.ID,
	})
	require.Nil(t, repoErr)
	var writeErr *ledger.WriteError
	require.ErrorAs(t, outcome.LedgerErr, &writeErr)
	require.True(t, writeErr.OutcomeUnknown)

	awards, listErr := repo.ListAwards(repository.AwardFilter{StudentID: student.ID})
	require.Nil(t, listErr)
	require.Len(t, awards, 1)
	require.Equal(t, models.AwardStatusFailed, awards[0].Status)

	// No confirmed tokens are counted for a failed grant.
	earned, sumErr := repo.ConfirmedRewardSum(student.ID)
	require.Nil(t, sumErr)
	require.Zero(t, earned)
}
