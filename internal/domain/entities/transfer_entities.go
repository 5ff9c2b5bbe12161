package entities

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Chain describes a supported network and its CCTP V2 contract addresses.
// Loaded once at startup from configuration and never mutated afterwards.
type Chain struct {
	ID                   uint64
	Name                 string
	Domain               uint32 // CCTP domain, distinct from the native chain id
	RPCEndpoint          string
	ExplorerURL          string
	TokenMessenger       common.Address
	MessageTransmitter   common.Address
	StableToken          common.Address
	SupportsFastTransfer bool
}

// Validate checks that the chain carries everything a transfer needs
func (c Chain) Validate() error {
	if c.ID == 0 {
		return fmt.Errorf("chain %q: missing chain id", c.Name)
	}
	if c.RPCEndpoint == "" {
		return fmt.Errorf("chain %q: missing rpc endpoint", c.Name)
	}
	if c.TokenMessenger == (common.Address{}) {
		return fmt.Errorf("chain %q: missing token messenger address", c.Name)
	}
	if c.MessageTransmitter == (common.Address{}) {
		return fmt.Errorf("chain %q: missing message transmitter address", c.Name)
	}
	if c.StableToken == (common.Address{}) {
		return fmt.Errorf("chain %q: missing stable token address", c.Name)
	}
	return nil
}

// TxURL returns the explorer link for a transaction hash, empty if no explorer
// is configured.
func (c Chain) TxURL(txHash string) string {
	if c.ExplorerURL == "" || txHash == "" {
		return ""
	}
	return fmt.Sprintf("%s/tx/%s", c.ExplorerURL, txHash)
}

// DefaultMaxFee is charged against fast transfers when the caller does not set
// an explicit cap (in whole stablecoin units).
const DefaultMaxFee = "0.0005"

// TransferRequest describes one cross-chain transfer. Immutable once submitted
// to the orchestrator.
type TransferRequest struct {
	Amount            string // whole-token decimal string, e.g. "100.50"
	SourceChain       Chain
	DestinationChain  Chain
	Recipient         common.Address
	UseFastTransfer   bool
	DestinationCaller common.Address // zero address means any caller may mint
	MaxFee            string         // only meaningful for fast transfers
}

// Validate enforces the request invariants before any on-chain interaction
func (r *TransferRequest) Validate() error {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", r.Amount, err)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", amount)
	}
	if r.SourceChain.ID == r.DestinationChain.ID {
		return fmt.Errorf("source and destination chain must differ, both are %d", r.SourceChain.ID)
	}
	if r.Recipient == (common.Address{}) {
		return fmt.Errorf("recipient address is required")
	}
	if err := r.SourceChain.Validate(); err != nil {
		return fmt.Errorf("source chain: %w", err)
	}
	if err := r.DestinationChain.Validate(); err != nil {
		return fmt.Errorf("destination chain: %w", err)
	}
	if r.MaxFee != "" {
		if _, err := decimal.NewFromString(r.MaxFee); err != nil {
			return fmt.Errorf("invalid max fee %q: %w", r.MaxFee, err)
		}
	}
	return nil
}

// EffectiveMaxFee returns the fee cap to encode into the burn call.
func (r *TransferRequest) EffectiveMaxFee() string {
	if r.MaxFee != "" {
		return r.MaxFee
	}
	return DefaultMaxFee
}

// TransferPhase tags the stage a transfer has reached
type TransferPhase string

const (
	PhaseIdle                TransferPhase = "idle"
	PhaseChecksAllowance     TransferPhase = "checks_allowance"
	PhaseApproving           TransferPhase = "approving"
	PhaseBurning             TransferPhase = "burning"
	PhaseAwaitingAttestation TransferPhase = "awaiting_attestation"
	PhaseAttestationReady    TransferPhase = "attestation_ready"
	PhaseMinting             TransferPhase = "minting"
	PhaseCompleted           TransferPhase = "completed"
	PhaseFailed              TransferPhase = "failed"
)

// Terminal reports whether the phase ends the flow. A failed transfer that
// still holds attestation data remains retryable even though the phase is
// terminal; see TransferState.CanRetryMint.
func (p TransferPhase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// TransferState is the single mutable value owned by one in-flight transfer.
// The only field a user must retain across sessions is BurnTxHash; everything
// else can be rebuilt from it via the resume path.
type TransferState struct {
	ID          uuid.UUID
	Phase       TransferPhase
	Request     *TransferRequest
	BurnTxHash  string
	Message     hexutil.Bytes
	Attestation hexutil.Bytes
	MintTxHash  string
	LastError   *TransferError
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewTransferState starts a fresh transfer lifecycle
func NewTransferState(req *TransferRequest) *TransferState {
	now := time.Now()
	return &TransferState{
		ID:        uuid.New(),
		Phase:     PhaseIdle,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ResumedTransferState rebuilds state from a user-supplied burn transaction
// hash. The request amount and recipient are unknown at this point; they are
// encoded in the attested message and not needed to complete the transfer.
func ResumedTransferState(burnTxHash string, source, destination Chain) *TransferState {
	now := time.Now()
	return &TransferState{
		ID:    uuid.New(),
		Phase: PhaseAwaitingAttestation,
		Request: &TransferRequest{
			SourceChain:      source,
			DestinationChain: destination,
		},
		BurnTxHash: burnTxHash,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Advance moves the state to the next phase
func (s *TransferState) Advance(phase TransferPhase) {
	s.Phase = phase
	s.UpdatedAt = time.Now()
}

// Fail records a terminal failure. Attestation data is deliberately kept so a
// mint-phase failure stays retryable.
func (s *TransferState) Fail(terr *TransferError) {
	s.Phase = PhaseFailed
	s.LastError = terr
	s.UpdatedAt = time.Now()
}

// HasAttestation reports whether the signed attestation has been obtained
func (s *TransferState) HasAttestation() bool {
	return len(s.Message) > 0 && len(s.Attestation) > 0
}

// CanRetryMint reports whether Complete may be called (again) on this state:
// either the attestation is ready, or minting failed without consuming it.
func (s *TransferState) CanRetryMint() bool {
	if !s.HasAttestation() {
		return false
	}
	switch s.Phase {
	case PhaseAttestationReady, PhaseMinting:
		return true
	case PhaseFailed:
		// The message stays live until the protocol consumes it.
		return s.LastError == nil || s.LastError.Kind != KindAlreadyConsumedOrExpired
	default:
		return false
	}
}

// Resumable reports whether the transfer can be picked up again from its burn
// hash after the client lost or abandoned the polling phase.
func (s *TransferState) Resumable() bool {
	return s.BurnTxHash != "" && !s.HasAttestation() && s.Phase != PhaseCompleted
}

// StatusEvent is the side channel the orchestrator and poller report progress
// on. It is informational only; the UI layer renders it, nothing in the
// protocol engine depends on it.
type StatusEvent struct {
	TransferID  uuid.UUID
	Phase       TransferPhase
	Label       string
	TxHash      string
	ExplorerURL string
	Attempt     int // attestation polling only
	MaxAttempts int
}
