package ledger

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// keySigner signs with an in-memory private key. The service identity used
// for grants and catalog writes is one of these.
type keySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewKeySigner builds a signer from a hex-encoded private key.
func NewKeySigner(hexKey string) (Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &keySigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (s *keySigner) Address() string {
	return strings.ToLower(s.addr.Hex())
}

func (s *keySigner) TransactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	return bind.NewKeyedTransactorWithChainID(s.key, chainID)
}

// keystoreSigner signs with an unlocked account from the node keystore.
// Campus-managed student wallets live there; redemptions are signed by the
// student's own account rather than the service identity.
type keystoreSigner struct {
	ks         *keystore.KeyStore
	account    accounts.Account
	passphrase string
}

func (s *keystoreSigner) Address() string {
	return strings.ToLower(s.account.Address.Hex())
}

func (s *keystoreSigner) TransactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	if err := s.ks.Unlock(s.account, s.passphrase); err != nil {
		return nil, fmt.Errorf("unlock %s: %w", s.account.Address.Hex(), err)
	}
	return bind.NewKeyStoreTransactorWithChainID(s.ks, s.account, chainID)
}
