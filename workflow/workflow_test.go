package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rewardhub/backend/ledger"
	"github.com/rewardhub/backend/repository"
	"github.com/rewardhub/backend/repository/models"
)

func newTestRepo(t *testing.T) *repository.Repository {
	t.Helper()
	// Per-test in-memory database to avoid cross-test interference.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn))
	require.NoError(t, err)
	repo := repository.New(db, slog.New(slog.DiscardHandler))
	require.NoError(t, repo.Migrate())
	return repo
}

// fakeGateway satisfies ledger.Gateway with overridable behavior. The zero
// value succeeds everywhere: every catalog entry exists and every write
// returns a fixed hash.
type fakeGateway struct {
	balanceFn func(wallet string) (ledger.Balance, error)
	existsFn  func(kind ledger.CatalogKind, title string) (bool, error)
	addFn     func(kind ledger.CatalogKind, title string, amount int64) (string, error)
	grantFn   func(wallet, title string) (string, error)
	redeemFn  func(title string) (string, error)
	supplyFn  func() (float64, error)

	grantCalls  []string
	redeemCalls []string
	addCalls    []string
}

const fakeTxHash = "0xfake"

func (f *fakeGateway) GetBalance(_ context.Context, wallet string) (ledger.Balance, error) {
	if f.balanceFn != nil {
		return f.balanceFn(wallet)
	}
	return ledger.Balance{Raw: "0", Human: 0}, nil
}

func (f *fakeGateway) GetTotalSupply(_ context.Context) (float64, error) {
	if f.supplyFn != nil {
		return f.supplyFn()
	}
	return 0, nil
}

func (f *fakeGateway) CatalogEntryExists(_ context.Context, kind ledger.CatalogKind, title string) (bool, error) {
	if f.existsFn != nil {
		return f.existsFn(kind, title)
	}
	return true, nil
}

func (f *fakeGateway) AddCatalogEntry(_ context.Context, kind ledger.CatalogKind, title string, amount int64) (string, error) {
	f.addCalls = append(f.addCalls, title)
	if f.addFn != nil {
		return f.addFn(kind, title, amount)
	}
	return fakeTxHash, nil
}

func (f *fakeGateway) UpdateCatalogEntry(_ context.Context, _ ledger.CatalogKind, _, _ string, _ int64) (string, error) {
	return fakeTxHash, nil
}

func (f *fakeGateway) DeactivateCatalogEntry(_ context.Context, _ ledger.CatalogKind, _ string) (string, error) {
	return fakeTxHash, nil
}

func (f *fakeGateway) RegisterStudent(_ context.Context, _ string) (string, error) {
	return fakeTxHash, nil
}

func (f *fakeGateway) Grant(_ context.Context, wallet, title string) (string, error) {
	f.grantCalls = append(f.grantCalls, wallet+":"+title)
	if f.grantFn != nil {
		return f.grantFn(wallet, title)
	}
	return fakeTxHash, nil
}

func (f *fakeGateway) Mint(_ context.Context, _ string, _ int64) (string, error) {
	return fakeTxHash, nil
}

func (f *fakeGateway) Redeem(_ context.Context, _ ledger.Signer, title string) (string, error) {
	f.redeemCalls = append(f.redeemCalls, title)
	if f.redeemFn != nil {
		return f.redeemFn(title)
	}
	return fakeTxHash, nil
}

func (f *fakeGateway) StudentSigner(wallet string) (ledger.Signer, error) {
	return fakeSigner{wallet: wallet}, nil
}

type fakeSigner struct{ wallet string }

func (s fakeSigner) Address() string { return s.wallet }
func (s fakeSigner) TransactOpts(_ *big.Int) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{}, nil
}

var _ ledger.Gateway = (*fakeGateway)(nil)

func seedStudent(t *testing.T, repo *repository.Repository, email string) *models.User {
	t.Helper()
	// A deterministic, unique 20-byte address derived from the email.
	hexEmail := fmt.Sprintf("%040x", []byte(email))
	wallet := "0x" + hexEmail[len(hexEmail)-40:]
	u := &models.User{
		Name:            "Student " + email,
		Email:           email,
		Password:        "hashed",
		Role:            models.RoleStudent,
		WalletAddress:   &wallet,
		WalletConnected: true,
	}
	require.Nil(t, repo.CreateUser(u))
	return u
}

// backdatePendingAward rewrites created_at through a second connection to
// the same shared in-memory database, so staleness cutoffs can be tested
// without sleeping.
func backdatePendingAward(t *testing.T, _ *repository.Repository, id string, age time.Duration) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())))
	require.NoError(t, err)
	err = db.Model(&models.StudentAward{}).Where("award_id = ?", id).
		UpdateColumn("created_at", time.Now().Add(-age)).Error
	require.NoError(t, err)
}

func seedAchievement(t *testing.T, repo *repository.Repository, title string, tokens int64) *models.Achievement {
	t.Helper()
	a := &models.Achievement{Title: title, TokenReward: tokens}
	require.Nil(t, repo.CreateAchievement(a))
	return a
}

func seedReward(t *testing.T, repo *repository.Repository, title string, cost int64) *models.Reward {
	t.Helper()
	rw := &models.Reward{Title: title, TokenCost: cost}
	require.Nil(t, repo.CreateReward(rw))
	return rw
}
