package evm

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fundbridge/fundbridge/internal/domain/entities"
)

// Signer abstracts the transaction-signing wallet. It tracks which chain it is
// currently pointed at so callers can detect and request network switches
// before submitting.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
	ActiveChainID() uint64
	SwitchChain(chainID uint64) error
}

// KeyedSigner signs with an in-process private key. Chain switching is a
// bookkeeping operation, gated by the set of chain ids the signer was
// configured for; an optional ApproveSwitch hook can veto a switch the way an
// interactive wallet user would.
type KeyedSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address

	mu      sync.Mutex
	active  uint64
	allowed map[uint64]struct{}

	// ApproveSwitch, when set, is consulted before every chain switch.
	// Returning false declines the switch.
	ApproveSwitch func(chainID uint64) bool
}

// NewKeyedSigner builds a signer bound to the given chains, initially pointed
// at activeChainID.
func NewKeyedSigner(key *ecdsa.PrivateKey, activeChainID uint64, allowedChainIDs ...uint64) (*KeyedSigner, error) {
	if key == nil {
		return nil, fmt.Errorf("nil private key")
	}
	allowed := make(map[uint64]struct{}, len(allowedChainIDs)+1)
	allowed[activeChainID] = struct{}{}
	for _, id := range allowedChainIDs {
		allowed[id] = struct{}{}
	}
	return &KeyedSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		active:  activeChainID,
		allowed: allowed,
	}, nil
}

func (s *KeyedSigner) Address() common.Address {
	return s.address
}

func (s *KeyedSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

func (s *KeyedSigner) ActiveChainID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *KeyedSigner) SwitchChain(chainID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.allowed[chainID]; !ok {
		return entities.NewTransferError(entities.KindUnsupportedNetwork,
			fmt.Errorf("chain id %d is not configured for this wallet", chainID))
	}
	if s.active == chainID {
		return nil
	}
	if s.ApproveSwitch != nil && !s.ApproveSwitch(chainID) {
		return entities.NewTransferError(entities.KindUserDeclinedSwitch,
			fmt.Errorf("switch to chain id %d was declined", chainID))
	}
	s.active = chainID
	return nil
}
