// Package ledger wraps the external campus token contract. The database
// never trusts itself about minted totals; this package is the only way the
// rest of the system touches the chain.
package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
)

// CatalogKind selects between the two mirrored catalog tables on-chain.
type CatalogKind string

const (
	KindAchievement CatalogKind = "achievement"
	KindPerk        CatalogKind = "perk"
)

// Balance is a token balance in both raw (smallest unit) and human form.
type Balance struct {
	Raw   string  `json:"raw"`
	Human float64 `json:"human"`
}

// Signer can produce transact options for a specific wallet. Grants and
// catalog writes use the service signer; redemptions must be signed by the
// student's own wallet.
type Signer interface {
	Address() string
	TransactOpts(chainID *big.Int) (*bind.TransactOpts, error)
}

// Gateway is the token-ledger collaborator. Every write blocks until the
// transaction is included in a block, so a returned hash always denotes a
// committed state change.
type Gateway interface {
	GetBalance(ctx context.Context, wallet string) (Balance, error)
	GetTotalSupply(ctx context.Context) (float64, error)

	CatalogEntryExists(ctx context.Context, kind CatalogKind, title string) (bool, error)
	AddCatalogEntry(ctx context.Context, kind CatalogKind, title string, amount int64) (string, error)
	UpdateCatalogEntry(ctx context.Context, kind CatalogKind, oldTitle, newTitle string, amount int64) (string, error)
	DeactivateCatalogEntry(ctx context.Context, kind CatalogKind, title string) (string, error)

	RegisterStudent(ctx context.Context, wallet string) (string, error)
	Grant(ctx context.Context, wallet, title string) (string, error)
	Mint(ctx context.Context, wallet string, amount int64) (string, error)

	// Redeem burns tokens for a perk under the caller's own identity.
	Redeem(ctx context.Context, caller Signer, title string) (string, error)

	// StudentSigner resolves the signing identity for a linked wallet.
	StudentSigner(wallet string) (Signer, error)
}

// ReadError is a failed or reverted ledger read.
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("ledger read %s: %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError is a failed, reverted, or timed-out ledger write. When
// OutcomeUnknown is set the transaction may still land on-chain even though
// the caller treats the operation as failed.
type WriteError struct {
	Op             string
	Reason         string
	OutcomeUnknown bool
	Err            error
}

func (e *WriteError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("ledger write %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("ledger write %s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
