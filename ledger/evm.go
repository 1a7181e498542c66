package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/rewardhub/backend/metrics"
)

const defaultDecimals = uint8(18)

// Config holds everything needed to reach the token contract.
type Config struct {
	RPCURL             string
	ContractAddress    string
	ChainID            int64
	ServiceKey         string
	KeystoreDir        string
	KeystorePassphrase string
	CallTimeout        time.Duration
}

// EVMGateway implements Gateway against an Ethereum JSON-RPC endpoint.
type EVMGateway struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	service  Signer
	keystore *keystore.KeyStore
	ksPass   string
	chainID  *big.Int
	timeout  time.Duration
	logger   *slog.Logger

	decimalsMu sync.Mutex
	decimals   *uint8
}

// NewEVMGateway dials the RPC endpoint and binds the contract. The service
// signer pays for grants and catalog writes; the keystore (optional) holds
// campus-managed student wallets used for redemptions.
func NewEVMGateway(cfg Config, logger *slog.Logger) (*EVMGateway, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(rewardTokenABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	service, err := NewKeySigner(cfg.ServiceKey)
	if err != nil {
		return nil, err
	}
	var ks *keystore.KeyStore
	if cfg.KeystoreDir != "" {
		ks = keystore.NewKeyStore(cfg.KeystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	addr := common.HexToAddress(cfg.ContractAddress)
	return &EVMGateway{
		client:   client,
		contract: bind.NewBoundContract(addr, parsed, client, client, client),
		service:  service,
		keystore: ks,
		ksPass:   cfg.KeystorePassphrase,
		chainID:  big.NewInt(cfg.ChainID),
		timeout:  timeout,
		logger:   logger,
	}, nil
}

// ServiceAddress returns the wallet paying for service-signed writes.
func (g *EVMGateway) ServiceAddress() string {
	return g.service.Address()
}

func (g *EVMGateway) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}

func (g *EVMGateway) read(ctx context.Context, op string, out *[]any, args ...any) error {
	ctx, cancel := g.callCtx(ctx)
	defer cancel()
	err := g.contract.Call(&bind.CallOpts{Context: ctx}, out, op, args...)
	if err != nil {
		metrics.LedgerCalls.WithLabelValues(op, "error").Inc()
		return &ReadError{Op: op, Err: err}
	}
	metrics.LedgerCalls.WithLabelValues(op, "ok").Inc()
	return nil
}

// transact submits one write and blocks until it is mined, so the returned
// hash denotes a committed state change rather than a submission.
func (g *EVMGateway) transact(ctx context.Context, signer Signer, op string, args ...any) (string, error) {
	ctx, cancel := g.callCtx(ctx)
	defer cancel()

	opts, err := signer.TransactOpts(g.chainID)
	if err != nil {
		metrics.LedgerCalls.WithLabelValues(op, "error").Inc()
		return "", &WriteError{Op: op, Reason: "signer unavailable", Err: err}
	}
	opts.Context = ctx

	tx, err := g.contract.Transact(opts, op, args...)
	if err != nil {
		metrics.LedgerCalls.WithLabelValues(op, "error").Inc()
		return "", &WriteError{
			Op:             op,
			Reason:         err.Error(),
			OutcomeUnknown: errors.Is(err, context.DeadlineExceeded),
			Err:            err,
		}
	}

	receipt, err := bind.WaitMined(ctx, g.client, tx)
	if err != nil {
		metrics.LedgerCalls.WithLabelValues(op, "error").Inc()
		// The transaction was submitted; a timeout here does not mean it
		// failed on-chain.
		return "", &WriteError{
			Op:             op,
			Reason:         fmt.Sprintf("waiting for inclusion of %s: %v", tx.Hash().Hex(), err),
			OutcomeUnknown: true,
			Err:            err,
		}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		metrics.LedgerCalls.WithLabelValues(op, "reverted").Inc()
		return "", &WriteError{Op: op, Reason: fmt.Sprintf("transaction %s reverted", tx.Hash().Hex())}
	}

	metrics.LedgerCalls.WithLabelValues(op, "ok").Inc()
	g.logger.Info("ledger write committed", "op", op, "tx", tx.Hash().Hex(), "block", receipt.BlockNumber)
	return tx.Hash().Hex(), nil
}

func (g *EVMGateway) tokenDecimals(ctx context.Context) uint8 {
	g.decimalsMu.Lock()
	defer g.decimalsMu.Unlock()
	if g.decimals != nil {
		return *g.decimals
	}
	var out []any
	if err := g.read(ctx, "decimals", &out); err != nil || len(out) == 0 {
		g.logger.Warn("decimals query failed, assuming 18", "err", err)
		return defaultDecimals
	}
	d, ok := out[0].(uint8)
	if !ok {
		return defaultDecimals
	}
	g.decimals = &d
	return d
}

func humanUnits(raw *big.Int, decimals uint8) float64 {
	scale := new(big.Float).SetFloat64(math.Pow10(int(decimals)))
	h, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), scale).Float64()
	return h
}

// GetBalance reads the token balance of a wallet.
func (g *EVMGateway) GetBalance(ctx context.Context, wallet string) (Balance, error) {
	if !common.IsHexAddress(wallet) {
		return Balance{}, &ReadError{Op: "balanceOf", Err: fmt.Errorf("invalid address %q", wallet)}
	}
	var out []any
	if err := g.read(ctx, "balanceOf", &out, common.HexToAddress(wallet)); err != nil {
		return Balance{}, err
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return Balance{}, &ReadError{Op: "balanceOf", Err: fmt.Errorf("unexpected result type %T", out[0])}
	}
	return Balance{Raw: raw.String(), Human: humanUnits(raw, g.tokenDecimals(ctx))}, nil
}

// GetTotalSupply reads the ledger-wide issued total in human units.
func (g *EVMGateway) GetTotalSupply(ctx context.Context) (float64, error) {
	var out []any
	if err := g.read(ctx, "totalSupply", &out); err != nil {
		return 0, err
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return 0, &ReadError{Op: "totalSupply", Err: fmt.Errorf("unexpected result type %T", out[0])}
	}
	return humanUnits(raw, g.tokenDecimals(ctx)), nil
}

// CatalogEntryExists checks whether a catalog entry is already mirrored
// on-chain.
func (g *EVMGateway) CatalogEntryExists(ctx context.Context, kind CatalogKind, title string) (bool, error) {
	m, ok := catalogMethods[kind]
	if !ok {
		return false, &ReadError{Op: string(kind), Err: fmt.Errorf("unknown catalog kind")}
	}
	var out []any
	if err := g.read(ctx, m.exists, &out, title); err != nil {
		return false, err
	}
	exists, ok := out[0].(bool)
	if !ok {
		return false, &ReadError{Op: m.exists, Err: fmt.Errorf("unexpected result type %T", out[0])}
	}
	return exists, nil
}

// AddCatalogEntry mirrors an achievement or perk on-chain.
func (g *EVMGateway) AddCatalogEntry(ctx context.Context, kind CatalogKind, title string, amount int64) (string, error) {
	m, ok := catalogMethods[kind]
	if !ok {
		return "", &WriteError{Op: string(kind), Reason: "unknown catalog kind"}
	}
	return g.transact(ctx, g.service, m.add, title, big.NewInt(amount))
}

// UpdateCatalogEntry renames or reprices an on-chain catalog entry.
func (g *EVMGateway) UpdateCatalogEntry(ctx context.Context, kind CatalogKind, oldTitle, newTitle string, amount int64) (string, error) {
	m, ok := catalogMethods[kind]
	if !ok {
		return "", &WriteError{Op: string(kind), Reason: "unknown catalog kind"}
	}
	return g.transact(ctx, g.service, m.update, oldTitle, newTitle, big.NewInt(amount))
}

// DeactivateCatalogEntry disables an on-chain catalog entry. Used instead of
// deletion once an entry has been confirmed on-chain.
func (g *EVMGateway) DeactivateCatalogEntry(ctx context.Context, kind CatalogKind, title string) (string, error) {
	m, ok := catalogMethods[kind]
	if !ok {
		return "", &WriteError{Op: string(kind), Reason: "unknown catalog kind"}
	}
	return g.transact(ctx, g.service, m.deactivate, title)
}

// RegisterStudent registers a linked wallet with the contract.
func (g *EVMGateway) RegisterStudent(ctx context.Context, wallet string) (string, error) {
	if !common.IsHexAddress(wallet) {
		return "", &WriteError{Op: "registerStudent", Reason: fmt.Sprintf("invalid address %q", wallet)}
	}
	return g.transact(ctx, g.service, "registerStudent", common.HexToAddress(wallet))
}

// Grant mints the achievement's reward to a student wallet, service-signed.
func (g *EVMGateway) Grant(ctx context.Context, wallet, title string) (string, error) {
	if !common.IsHexAddress(wallet) {
		return "", &WriteError{Op: "grantAchievement", Reason: fmt.Sprintf("invalid address %q", wallet)}
	}
	return g.transact(ctx, g.service, "grantAchievement", common.HexToAddress(wallet), title)
}

// Mint issues an arbitrary amount to a wallet, service-signed.
func (g *EVMGateway) Mint(ctx context.Context, wallet string, amount int64) (string, error) {
	if !common.IsHexAddress(wallet) {
		return "", &WriteError{Op: "mint", Reason: fmt.Sprintf("invalid address %q", wallet)}
	}
	return g.transact(ctx, g.service, "mint", common.HexToAddress(wallet), big.NewInt(amount))
}

// Redeem burns tokens for a perk. The contract resolves the redeeming
// student from the transaction sender, so this is signed by the caller, not
// the service identity.
func (g *EVMGateway) Redeem(ctx context.Context, caller Signer, title string) (string, error) {
	return g.transact(ctx, caller, "redeemPerk", title)
}

// StudentSigner resolves the keystore account for a linked wallet.
func (g *EVMGateway) StudentSigner(wallet string) (Signer, error) {
	if g.keystore == nil {
		return nil, &WriteError{Op: "redeemPerk", Reason: "no wallet keystore configured"}
	}
	if !common.IsHexAddress(wallet) {
		return nil, &WriteError{Op: "redeemPerk", Reason: fmt.Sprintf("invalid address %q", wallet)}
	}
	account, err := g.keystore.Find(accounts.Account{Address: common.HexToAddress(wallet)})
	if err != nil {
		return nil, &WriteError{Op: "redeemPerk", Reason: fmt.Sprintf("wallet %s not held by platform keystore", wallet), Err: err}
	}
	return &keystoreSigner{ks: g.keystore, account: account, passphrase: g.ksPass}, nil
}

var _ Gateway = (*EVMGateway)(nil)
