package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rewardhub/backend/ledger"
	"github.com/rewardhub/backend/repository"
	"github.com/rewardhub/backend/repository/models"
	"github.com/rewardhub/backend/workflow"
)

const testTxHash = "0xfake"

// fakeGateway satisfies ledger.Gateway; the zero value succeeds everywhere.
type fakeGateway struct {
	addFn    func(kind ledger.CatalogKind, title string, amount int64) (string, error)
	grantFn  func(wallet, title string) (string, error)
	redeemFn func(title string) (string, error)
}

func (f *fakeGateway) GetBalance(_ context.Context, _ string) (ledger.Balance, error) {
	return ledger.Balance{Raw: "42000000000000000000", Human: 42}, nil
}
func (f *fakeGateway) GetTotalSupply(_ context.Context) (float64, error) { return 1000, nil }
func (f *fakeGateway) CatalogEntryExists(_ context.Context, _ ledger.CatalogKind, _ string) (bool, error) {
	return true, nil
}
func (f *fakeGateway) AddCatalogEntry(_ context.Context, kind ledger.CatalogKind, title string, amount int64) (string, error) {
	if f.addFn != nil {
		return f.addFn(kind, title, amount)
	}
	return testTxHash, nil
}
func (f *fakeGateway) UpdateCatalogEntry(_ context.Context, _ ledger.CatalogKind, _, _ string, _ int64) (string, error) {
	return testTxHash, nil
}
func (f *fakeGateway) DeactivateCatalogEntry(_ context.Context, _ ledger.CatalogKind, _ string) (string, error) {
	return testTxHash, nil
}
func (f *fakeGateway) RegisterStudent(_ context.Context, _ string) (string, error) {
	return testTxHash, nil
}
func (f *fakeGateway) Grant(_ context.Context, wallet, title string) (string, error) {
	if f.grantFn != nil {
		return f.grantFn(wallet, title)
	}
	return testTxHash, nil
}
func (f *fakeGateway) Mint(_ context.Context, _ string, _ int64) (string, error) {
	return testTxHash, nil
}
func (f *fakeGateway) Redeem(_ context.Context, _ ledger.Signer, title string) (string, error) {
	if f.redeemFn != nil {
		return f.redeemFn(title)
	}
	return testTxHash, nil
}
func (f *fakeGateway) StudentSigner(wallet string) (ledger.Signer, error) {
	return fakeSigner{wallet}, nil
}

type fakeSigner struct{ wallet string }

func (s fakeSigner) Address() string { return s.wallet }
func (s fakeSigner) TransactOpts(_ *big.Int) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{}, nil
}

var _ ledger.Gateway = (*fakeGateway)(nil)

func setupServer(t *testing.T) (*WebServer, *repository.Repository, *fakeGateway) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn))
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	repo := repository.New(db, logger)
	require.NoError(t, repo.Migrate())

	gw := &fakeGateway{}
	ws := NewWebServer(
		repo, gw,
		workflow.NewAwardService(repo, gw, logger),
		workflow.NewRedemptionService(repo, gw, logger),
		workflow.NewDashboardService(repo, gw, logger),
		AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
		"0", logger,
	)
	return ws, repo, gw
}

func httpDo(ws *WebServer, method, path, token string, body any) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ws.Engine().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// registerAndLogin creates an account through the API and returns its token.
func registerAndLogin(t *testing.T, ws *WebServer, email, role string) string {
	t.Helper()
	w := httpDo(ws, "POST", "/api/auth/register", "", jsonBody{
		"name": "Test " + role, "email": email, "password": "password123", "role": role,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	return decode(t, w)["token"].(string)
}

// adminToken seeds an admin directly and logs it in; admins cannot
// self-register.
func adminToken(t *testing.T, ws *WebServer, repo *repository.Repository) string {
	t.Helper()
	hashed, err := hashPassword("password123")
	require.NoError(t, err)
	admin := &models.User{Name: "Admin", Email: "admin@campus.edu", Password: hashed, Role: models.RoleAdmin}
	require.Nil(t, repo.CreateUser(admin))

	w := httpDo(ws, "POST", "/api/auth/login", "", jsonBody{
		"email": "admin@campus.edu", "password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	return decode(t, w)["token"].(string)
}

func linkWallet(t *testing.T, repo *repository.Repository, email, wallet string) *models.User {
	t.Helper()
	u, repoErr := repo.GetUserByEmail(email)
	require.Nil(t, repoErr)
	u.WalletAddress = &wallet
	u.WalletConnected = true
	require.Nil(t, repo.UpdateUser(u))
	return u
}

type jsonBody = map[string]any

func TestRegisterLoginProfile(t *testing.T) {
	ws, _, _ := setupServer(t)

	token := registerAndLogin(t, ws, "alice@campus.edu", "student")

	w := httpDo(ws, "GET", "/api/auth/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	user := decode(t, w)["user"].(map[string]any)
	require.Equal(t, "alice@campus.edu", user["email"])
	require.Equal(t, "student", user["role"])
	// Password never appears in responses.
	require.NotContains(t, w.Body.String(), "password123")

	// Bad credentials and bad tokens are both rejected.
	w = httpDo(ws, "POST", "/api/auth/login", "", jsonBody{"email": "alice@campus.edu", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w = httpDo(ws, "GET", "/api/auth/profile", "not-a-token", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	ws, _, _ := setupServer(t)
	w := httpDo(ws, "POST", "/api/auth/register", "", jsonBody{
		"name": "Eve", "email": "eve@campus.edu", "password": "password123", "role": "admin",
	})
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestCapabilityGating(t *testing.T) {
	ws, repo, _ := setupServer(t)
	studentTok := registerAndLogin(t, ws, "student@campus.edu", "student")
	facultyTok := registerAndLogin(t, ws, "faculty@campus.edu", "faculty")
	adminTok := adminToken(t, ws, repo)

	// Students cannot touch the catalog or the roster.
	w := httpDo(ws, "POST", "/api/admin/achievements", studentTok, jsonBody{"title": "X", "tokenAmount": 10})
	require.Equal(t, http.StatusForbidden, w.Code)
	w = httpDo(ws, "GET", "/api/admin/students", studentTok, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	// Faculty can list students but cannot manage users or the catalog.
	w = httpDo(ws, "GET", "/api/admin/students", facultyTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = httpDo(ws, "GET", "/api/admin/users", facultyTok, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	w = httpDo(ws, "POST", "/api/admin/perks", facultyTok, jsonBody{"title": "X", "tokenAmount": 10})
	require.Equal(t, http.StatusForbidden, w.Code)

	// Faculty cannot redeem; that capability belongs to students.
	w = httpDo(ws, "POST", "/api/redemptions", facultyTok, jsonBody{"rewardId": "any"})
	require.Equal(t, http.StatusForbidden, w.Code)

	// Admin passes all gates.
	w = httpDo(ws, "GET", "/api/admin/users", adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// No token at all.
	w = httpDo(ws, "GET", "/api/admin/users", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAwardAchievementEndpoint(t *testing.T) {
	ws, repo, _ := setupServer(t)
	facultyTok := registerAndLogin(t, ws, "prof@campus.edu", "faculty")
	registerAndLogin(t, ws, "alice@campus.edu", "student")
	student := linkWallet(t, repo, "alice@campus.edu", "0x0000000000000000000000000000000000000001")

	a := &models.Achievement{Title: "Dean's List", TokenReward: 100}
	require.Nil(t, repo.CreateAchievement(a))

	w := httpDo(ws, "POST", "/api/student-achievements", facultyTok, jsonBody{
		"studentId": student.ID, "achievementId": a.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode(t, w)
	require.Equal(t, testTxHash, resp["txHash"])
	require.Equal(t, float64(100), resp["tokensAwarded"])
	award := resp["award"].(map[string]any)
	require.Equal(t, models.AwardStatusConfirmed, award["status"])
	require.NotNil(t, award["achievement"])

	// The same pair again conflicts.
	w = httpDo(ws, "POST", "/api/student-achievements", facultyTok, jsonBody{
		"studentId": student.ID, "achievementId": a.ID,
	})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestAwardLedgerFailureReturnsRecord(t *testing.T) {
	ws, repo, gw := setupServer(t)
	gw.grantFn = func(_, _ string) (string, error) {
		return "", errors.New("rpc unreachable")
	}

	facultyTok := registerAndLogin(t, ws, "prof@campus.edu", "faculty")
	registerAndLogin(t, ws, "bob@campus.edu", "student")
	student := linkWallet(t, repo, "bob@campus.edu", "0x0000000000000000000000000000000000000002")

	a := &models.Achievement{Title: "Hackathon Winner", TokenReward: 150}
	require.Nil(t, repo.CreateAchievement(a))

	w := httpDo(ws, "POST", "/api/student-achievements", facultyTok, jsonBody{
		"studentId": student.ID, "achievementId": a.ID,
	})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode(t, w)
	award := resp["award"].(map[string]any)
	require.Equal(t, models.AwardStatusFailed, award["status"])
	require.Contains(t, resp["detail"], "rpc unreachable")
}

func TestAwardWithoutWalletForbidden(t *testing.T) {
	ws, repo, _ := setupServer(t)
	facultyTok := registerAndLogin(t, ws, "prof@campus.edu", "faculty")
	registerAndLogin(t, ws, "nowallet@campus.edu", "student")

	student, repoErr := repo.GetUserByEmail("nowallet@campus.edu")
	require.Nil(t, repoErr)
	a := &models.Achievement{Title: "Dean's List", TokenReward: 100}
	require.Nil(t, repo.CreateAchievement(a))

	w := httpDo(ws, "POST", "/api/student-achievements", facultyTok, jsonBody{
		"studentId": student.ID, "achievementId": a.ID,
	})
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestStudentsSeeOnlyOwnAwards(t *testing.T) {
	ws, repo, _ := setupServer(t)
	aliceTok := registerAndLogin(t, ws, "alice@campus.edu", "student")
	registerAndLogin(t, ws, "bob@campus.edu", "student")
	alice := linkWallet(t, repo, "alice@campus.edu", "0x0000000000000000000000000000000000000011")
	bob := linkWallet(t, repo, "bob@campus.edu", "0x0000000000000000000000000000000000000012")

	a := &models.Achievement{Title: "Dean's List", TokenReward: 100}
	require.Nil(t, repo.CreateAchievement(a))
	for _, s := range []*models.User{alice, bob} {
		award := &models.StudentAward{StudentID: s.ID, AchievementID: a.ID}
		require.Nil(t, repo.CreatePendingAward(award))
		tx := testTxHash
		require.Nil(t, repo.ResolveAward(award.ID, models.AwardStatusConfirmed, &tx))
	}

	// The list collapses to Alice's own records even without a filter.
	w := httpDo(ws, "GET", "/api/student-achievements", aliceTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), decode(t, w)["total"])

	// Another student's history is off limits.
	w = httpDo(ws, "GET", "/api/student-achievements/student/"+bob.ID, aliceTok, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	w = httpDo(ws, "GET", "/api/redemptions/student/"+bob.ID, aliceTok, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	// Deleting awards needs the delete capability.
	w = httpDo(ws, "DELETE", "/api/student-achievements/some-id", aliceTok, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRedeemEndpoint(t *testing.T) {
	ws, repo, _ := setupServer(t)
	studentTok := registerAndLogin(t, ws, "alice@campus.edu", "student")
	student := linkWallet(t, repo, "alice@campus.edu", "0x0000000000000000000000000000000000000003")

	// Fund the balance with a confirmed award.
	a := &models.Achievement{Title: "Dean's List", TokenReward: 100}
	require.Nil(t, repo.CreateAchievement(a))
	award := &models.StudentAward{StudentID: student.ID, AchievementID: a.ID}
	require.Nil(t, repo.CreatePendingAward(award))
	tx := testTxHash
	require.Nil(t, repo.ResolveAward(award.ID, models.AwardStatusConfirmed, &tx))

	rw := &models.Reward{Title: "Coffee Voucher", TokenCost: 30}
	require.Nil(t, repo.CreateReward(rw))

	w := httpDo(ws, "POST", "/api/redemptions", studentTok, jsonBody{"rewardId": rw.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode(t, w)
	require.Equal(t, float64(70), resp["remainingBalance"])
	redemption := resp["redemption"].(map[string]any)
	require.Equal(t, models.RedemptionStatusApproved, redemption["status"])

	// Too expensive now.
	pricey := &models.Reward{Title: "Parking Pass", TokenCost: 500}
	require.Nil(t, repo.CreateReward(pricey))
	w = httpDo(ws, "POST", "/api/redemptions", studentTok, jsonBody{"rewardId": pricey.ID})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "not enough tokens")
}

func TestRedeemWithoutWalletBlocked(t *testing.T) {
	ws, repo, _ := setupServer(t)
	studentTok := registerAndLogin(t, ws, "nowallet@campus.edu", "student")
	rw := &models.Reward{Title: "Coffee Voucher", TokenCost: 30}
	require.Nil(t, repo.CreateReward(rw))

	w := httpDo(ws, "POST", "/api/redemptions", studentTok, jsonBody{"rewardId": rw.ID})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "connect_wallet")
}

func TestCreateAchievementSyncWarning(t *testing.T) {
	ws, repo, gw := setupServer(t)
	adminTok := adminToken(t, ws, repo)
	gw.addFn = func(_ ledger.CatalogKind, _ string, _ int64) (string, error) {
		return "", errors.New("insufficient funds for gas")
	}

	w := httpDo(ws, "POST", "/api/admin/achievements", adminTok, jsonBody{
		"title": "Dean's List", "tokenAmount": 100,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode(t, w)
	require.Contains(t, resp["warning"], "on-chain creation failed")
	achievement := resp["achievement"].(map[string]any)
	require.Equal(t, false, achievement["onChainCreated"])

	// With a healthy ledger the entry comes back mirrored.
	gw.addFn = nil
	w = httpDo(ws, "POST", "/api/admin/perks", adminTok, jsonBody{
		"title": "Coffee Voucher", "tokenAmount": 30,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	resp = decode(t, w)
	require.NotContains(t, resp, "warning")

	perks, _, repoErr := repo.ListRewards(repository.CatalogFilter{})
	require.Nil(t, repoErr)
	require.Len(t, perks, 1)
	require.True(t, perks[0].OnChainCreated)
	require.Equal(t, testTxHash, *perks[0].OnChainTx)
}

func TestCatalogCreateWithoutSync(t *testing.T) {
	ws, repo, _ := setupServer(t)
	adminTok := adminToken(t, ws, repo)

	w := httpDo(ws, "POST", "/api/admin/achievements", adminTok, jsonBody{
		"title": "Offline Only", "tokenAmount": 10, "syncOnChain": false,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	entries, _, repoErr := repo.ListAchievements(repository.CatalogFilter{})
	require.Nil(t, repoErr)
	require.Len(t, entries, 1)
	require.False(t, entries[0].OnChainCreated)
}

func TestWalletBalanceEndpoint(t *testing.T) {
	ws, _, _ := setupServer(t)

	w := httpDo(ws, "GET", "/api/blockchain/balance/0x0000000000000000000000000000000000000001", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	balance := decode(t, w)["balance"].(map[string]any)
	require.Equal(t, float64(42), balance["human"])

	w = httpDo(ws, "GET", "/api/blockchain/balance/nonsense", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDashboardStatsEndpoint(t *testing.T) {
	ws, repo, _ := setupServer(t)
	adminTok := adminToken(t, ws, repo)
	registerAndLogin(t, ws, "alice@campus.edu", "student")
	linkWallet(t, repo, "alice@campus.edu", "0x0000000000000000000000000000000000000004")

	w := httpDo(ws, "GET", "/api/admin/dashboard-stats", adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	require.Equal(t, float64(1000), resp["totalTokensAvailableInBlockchain"])
	require.Equal(t, float64(1), resp["totalRegisteredStudents"])
	require.NotEmpty(t, resp["topHolders"])
}

func TestHealthEndpoint(t *testing.T) {
	ws, _, _ := setupServer(t)
	w := httpDo(ws, "GET", "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", decode(t, w)["status"])
}
