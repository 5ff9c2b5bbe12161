package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fundbridge/fundbridge/internal/domain/entities"
)

// ErrBusy is returned when an operation is attempted while another transfer
// step is already running on this orchestrator.
var ErrBusy = errors.New("a transfer operation is already in progress")

// ChainClient is the slice of the chain client the orchestrator drives
type ChainClient interface {
	Chain() entities.Chain
	SwitchActiveNetwork(chainID uint64) error
	FreshTokenBalance(ctx context.Context, account common.Address) (decimal.Decimal, error)
	FreshTokenAllowance(ctx context.Context, owner, spender common.Address) (decimal.Decimal, error)
	ApproveSpender(ctx context.Context, amount decimal.Decimal) (string, error)
	SubmitBurn(ctx context.Context, req *entities.TransferRequest) (string, error)
	SubmitMint(ctx context.Context, message, attestation hexutil.Bytes) (string, error)
	VerifyBurnTx(ctx context.Context, txHash string) error
}

// AttestationPoller waits for the attestation service to sign off on a burn
type AttestationPoller interface {
	AwaitAttestation(ctx context.Context, burnTxHash string, sourceChain entities.Chain, notify func(event entities.StatusEvent)) (hexutil.Bytes, hexutil.Bytes, error)
}

// Wallet exposes the signing account's address for balance and allowance reads
type Wallet interface {
	Address() common.Address
}

// Notifier receives progress events for display. Optional.
type Notifier func(event entities.StatusEvent)

// Orchestrator drives one cross-chain transfer at a time through its phases:
// allowance check, approval, burn, attestation wait, and mint. Start ends with
// the attestation in hand; Complete performs the destination mint, so the
// caller controls when the network switch happens.
type Orchestrator struct {
	source ChainClient
	dest   ChainClient
	wallet Wallet
	poller AttestationPoller
	logger *zap.Logger
	notify Notifier

	mu   sync.Mutex
	busy bool
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithNotifier attaches a progress event sink
func WithNotifier(notify Notifier) Option {
	return func(o *Orchestrator) { o.notify = notify }
}

// NewOrchestrator wires the source and destination chain clients, the signing
// wallet, and the attestation poller together.
func NewOrchestrator(source, dest ChainClient, wallet Wallet, poller AttestationPoller, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source: source,
		dest:   dest,
		wallet: wallet,
		poller: poller,
		logger: logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start runs a transfer from validation through burn and attestation. On
// success the returned state is in the attestation-ready phase and Complete
// can mint on the destination chain. On failure the state records the
// classified error; if the burn already landed, its hash is preserved for
// resuming.
func (o *Orchestrator) Start(ctx context.Context, req *entities.TransferRequest) (*entities.TransferState, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.release()

	state := entities.NewTransferState(req)

	if err := req.Validate(); err != nil {
		return o.fail(state, entities.NewTransferError(entities.KindConfigurationError, err))
	}
	if req.SourceChain.ID != o.source.Chain().ID || req.DestinationChain.ID != o.dest.Chain().ID {
		return o.fail(state, entities.NewTransferError(entities.KindConfigurationError,
			fmt.Errorf("request chains do not match the wired clients")))
	}

	if err := o.source.SwitchActiveNetwork(req.SourceChain.ID); err != nil {
		return o.fail(state, o.asTransferError(err, entities.KindNetworkSwitchRequired))
	}

	o.advance(state, entities.PhaseChecksAllowance, "Checking balance and allowance", "")

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return o.fail(state, entities.NewTransferError(entities.KindConfigurationError, err))
	}
	owner := o.wallet.Address()

	balance, err := o.source.FreshTokenBalance(ctx, owner)
	if err != nil {
		return o.fail(state, o.asTransferError(err, entities.KindNetworkError))
	}
	if balance.LessThan(amount) {
		return o.fail(state, entities.NewTransferError(entities.KindInsufficientFunds,
			fmt.Errorf("balance %s is below transfer amount %s", balance, amount)))
	}

	allowance, err := o.source.FreshTokenAllowance(ctx, owner, req.SourceChain.TokenMessenger)
	if err != nil {
		return o.fail(state, o.asTransferError(err, entities.KindNetworkError))
	}

	if allowance.LessThan(amount) {
		o.advance(state, entities.PhaseApproving, "Approving token spend", "")
		approveTx, err := o.source.ApproveSpender(ctx, amount)
		if err != nil {
			return o.fail(state, o.asTransferError(err, entities.KindApprovalFailed))
		}
		o.logger.Info("Approval confirmed",
			zap.String("transfer_id", state.ID.String()),
			zap.String("tx_hash", approveTx))
	}

	o.advance(state, entities.PhaseBurning, "Burning on source chain", "")
	burnTx, err := o.source.SubmitBurn(ctx, req)
	// A failed receipt wait still returns the broadcast hash; it must land on
	// the state before any failure is recorded, or the transfer cannot resume.
	state.BurnTxHash = burnTx
	if err != nil {
		return o.fail(state, o.asTransferError(err, entities.KindBurnFailed))
	}
	o.logger.Info("Burn confirmed",
		zap.String("transfer_id", state.ID.String()),
		zap.String("burn_tx_hash", burnTx),
		zap.String("source_chain", req.SourceChain.Name))

	state.Advance(entities.PhaseAwaitingAttestation)
	return o.awaitAttestation(ctx, state)
}

// Resume picks up a transfer from its burn transaction hash after the polling
// phase was lost or timed out. The burn is verified on the source chain before
// polling restarts.
func (o *Orchestrator) Resume(ctx context.Context, burnTxHash string) (*entities.TransferState, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.release()

	state := entities.ResumedTransferState(burnTxHash, o.source.Chain(), o.dest.Chain())

	if burnTxHash == "" {
		return o.fail(state, entities.NewTransferError(entities.KindConfigurationError,
			fmt.Errorf("burn transaction hash is required to resume")))
	}
	if err := o.source.VerifyBurnTx(ctx, burnTxHash); err != nil {
		return o.fail(state, o.asTransferError(err, entities.KindBurnFailed))
	}

	return o.awaitAttestation(ctx, state)
}

// Complete mints the attested message on the destination chain. It can be
// called again after a recoverable mint failure; the attestation stays on the
// state until the protocol consumes it.
func (o *Orchestrator) Complete(ctx context.Context, state *entities.TransferState) (*entities.TransferState, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.release()

	if !state.CanRetryMint() {
		if state.LastError != nil && state.LastError.Kind == entities.KindAlreadyConsumedOrExpired {
			return state, state.LastError
		}
		return state, entities.NewTransferError(entities.KindConfigurationError,
			fmt.Errorf("transfer %s has no usable attestation to mint", state.ID))
	}

	if err := o.dest.SwitchActiveNetwork(o.dest.Chain().ID); err != nil {
		terr := o.asTransferError(err, entities.KindNetworkSwitchRequired)
		state.Fail(terr.WithBurnTxHash(state.BurnTxHash))
		o.notifyFailure(state)
		return state, terr
	}

	o.advance(state, entities.PhaseMinting, "Minting on destination chain", "")
	mintTx, err := o.dest.SubmitMint(ctx, state.Message, state.Attestation)
	if err != nil {
		terr := o.asTransferError(err, entities.KindPossibleDuplicateOrExpired)
		state.Fail(terr.WithBurnTxHash(state.BurnTxHash))
		o.notifyFailure(state)
		return state, terr
	}

	state.MintTxHash = mintTx
	state.Advance(entities.PhaseCompleted)
	o.logger.Info("Transfer completed",
		zap.String("transfer_id", state.ID.String()),
		zap.String("mint_tx_hash", mintTx),
		zap.String("destination_chain", o.dest.Chain().Name))
	o.emit(entities.StatusEvent{
		TransferID:  state.ID,
		Phase:       entities.PhaseCompleted,
		Label:       "Transfer completed",
		TxHash:      mintTx,
		ExplorerURL: o.dest.Chain().TxURL(mintTx),
	})
	return state, nil
}

func (o *Orchestrator) awaitAttestation(ctx context.Context, state *entities.TransferState) (*entities.TransferState, error) {
	o.emit(entities.StatusEvent{
		TransferID:  state.ID,
		Phase:       entities.PhaseAwaitingAttestation,
		Label:       "Waiting for attestation",
		TxHash:      state.BurnTxHash,
		ExplorerURL: state.Request.SourceChain.TxURL(state.BurnTxHash),
	})

	message, attestation, err := o.poller.AwaitAttestation(ctx, state.BurnTxHash, state.Request.SourceChain,
		func(event entities.StatusEvent) {
			event.TransferID = state.ID
			o.emit(event)
		})
	if err != nil {
		terr := o.asTransferError(err, entities.KindAttestationTimeout)
		if terr.BurnTxHash == "" {
			terr.WithBurnTxHash(state.BurnTxHash)
		}
		state.Fail(terr)
		o.notifyFailure(state)
		return state, terr
	}

	state.Message = message
	state.Attestation = attestation
	o.advance(state, entities.PhaseAttestationReady, "Attestation ready", state.BurnTxHash)
	return state, nil
}

func (o *Orchestrator) acquire() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return ErrBusy
	}
	o.busy = true
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.busy = false
	o.mu.Unlock()
}

func (o *Orchestrator) advance(state *entities.TransferState, phase entities.TransferPhase, label, txHash string) {
	state.Advance(phase)
	o.emit(entities.StatusEvent{
		TransferID: state.ID,
		Phase:      phase,
		Label:      label,
		TxHash:     txHash,
	})
}

func (o *Orchestrator) fail(state *entities.TransferState, terr *entities.TransferError) (*entities.TransferState, error) {
	if state.BurnTxHash != "" && terr.BurnTxHash == "" {
		terr.WithBurnTxHash(state.BurnTxHash)
	}
	state.Fail(terr)
	o.notifyFailure(state)
	return state, terr
}

func (o *Orchestrator) notifyFailure(state *entities.TransferState) {
	o.logger.Warn("Transfer failed",
		zap.String("transfer_id", state.ID.String()),
		zap.String("kind", string(state.LastError.Kind)),
		zap.String("burn_tx_hash", state.BurnTxHash),
		zap.Error(state.LastError))
	o.emit(entities.StatusEvent{
		TransferID: state.ID,
		Phase:      entities.PhaseFailed,
		Label:      state.LastError.Guidance,
		TxHash:     state.BurnTxHash,
	})
}

func (o *Orchestrator) emit(event entities.StatusEvent) {
	if o.notify != nil {
		o.notify(event)
	}
}

// asTransferError normalizes any error into the taxonomy, defaulting to the
// phase's own kind for errors nothing classified earlier.
func (o *Orchestrator) asTransferError(err error, fallback entities.ErrorKind) *entities.TransferError {
	var terr *entities.TransferError
	if errors.As(err, &terr) {
		return terr
	}
	return entities.NewTransferError(fallback, err)
}
