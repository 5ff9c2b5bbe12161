package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fundbridge/fundbridge/internal/domain/entities"
)

type fakeChainClient struct {
	chain entities.Chain

	balance   decimal.Decimal
	allowance decimal.Decimal

	switchErr  error
	approveErr error
	burnErr    error
	mintErr    error
	verifyErr  error

	// burnErrHash is returned alongside burnErr, modelling a burn that was
	// broadcast but whose receipt wait did not complete
	burnErrHash string

	approveCalls int
	burnCalls    int
	mintCalls    int
	verifyCalls  int
}

func (f *fakeChainClient) Chain() entities.Chain { return f.chain }

func (f *fakeChainClient) SwitchActiveNetwork(chainID uint64) error { return f.switchErr }

func (f *fakeChainClient) FreshTokenBalance(ctx context.Context, account common.Address) (decimal.Decimal, error) {
	return f.balance, nil
}

func (f *fakeChainClient) FreshTokenAllowance(ctx context.Context, owner, spender common.Address) (decimal.Decimal, error) {
	return f.allowance, nil
}

func (f *fakeChainClient) ApproveSpender(ctx context.Context, amount decimal.Decimal) (string, error) {
	f.approveCalls++
	if f.approveErr != nil {
		return "", f.approveErr
	}
	return "0xapprove", nil
}

func (f *fakeChainClient) SubmitBurn(ctx context.Context, req *entities.TransferRequest) (string, error) {
	f.burnCalls++
	if f.burnErr != nil {
		return f.burnErrHash, f.burnErr
	}
	return "0xburn", nil
}

func (f *fakeChainClient) SubmitMint(ctx context.Context, message, attestation hexutil.Bytes) (string, error) {
	f.mintCalls++
	if f.mintErr != nil {
		return "", f.mintErr
	}
	return "0xmint", nil
}

func (f *fakeChainClient) VerifyBurnTx(ctx context.Context, txHash string) error {
	f.verifyCalls++
	return f.verifyErr
}

type fakePoller struct {
	message     hexutil.Bytes
	attestation hexutil.Bytes
	err         error
	block       chan struct{} // when set, AwaitAttestation waits on it
	calls       int
}

func (f *fakePoller) AwaitAttestation(ctx context.Context, burnTxHash string, sourceChain entities.Chain, notify func(event entities.StatusEvent)) (hexutil.Bytes, hexutil.Bytes, error) {
	f.calls++
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.message, f.attestation, nil
}

type fakeWallet struct{ address common.Address }

func (f *fakeWallet) Address() common.Address { return f.address }

func sepolia() entities.Chain {
	return entities.Chain{
		ID:                 11155111,
		Name:               "Ethereum Sepolia",
		Domain:             0,
		RPCEndpoint:        "https://ethereum-sepolia-rpc.publicnode.com",
		ExplorerURL:        "https://sepolia.etherscan.io",
		TokenMessenger:     common.HexToAddress("0x8FE6B999Dc680CcFDD5Bf7EB0974218be2542DAA"),
		MessageTransmitter: common.HexToAddress("0xE737e5cEBEEBa77EFE34D4aa090756590b1CE275"),
		StableToken:        common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"),
	}
}

func baseSepolia() entities.Chain {
	return entities.Chain{
		ID:                 84532,
		Name:               "Base Sepolia",
		Domain:             6,
		RPCEndpoint:        "https://sepolia.base.org",
		ExplorerURL:        "https://sepolia.basescan.org",
		TokenMessenger:     common.HexToAddress("0x8FE6B999Dc680CcFDD5Bf7EB0974218be2542DAA"),
		MessageTransmitter: common.HexToAddress("0xE737e5cEBEEBa77EFE34D4aa090756590b1CE275"),
		StableToken:        common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"),
	}
}

type fixture struct {
	source *fakeChainClient
	dest   *fakeChainClient
	poller *fakePoller
	events []entities.StatusEvent
	orch   *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		source: &fakeChainClient{
			chain:     sepolia(),
			balance:   decimal.NewFromInt(1000),
			allowance: decimal.NewFromInt(1000),
		},
		dest: &fakeChainClient{chain: baseSepolia()},
		poller: &fakePoller{
			message:     hexutil.Bytes{0x01, 0x02},
			attestation: hexutil.Bytes{0x03, 0x04},
		},
	}
	f.orch = NewOrchestrator(f.source, f.dest, &fakeWallet{address: common.HexToAddress("0xabc0000000000000000000000000000000000abc")},
		f.poller, zap.NewNop(),
		WithNotifier(func(event entities.StatusEvent) {
			f.events = append(f.events, event)
		}))
	return f
}

func (f *fixture) request() *entities.TransferRequest {
	return &entities.TransferRequest{
		Amount:           "25",
		SourceChain:      sepolia(),
		DestinationChain: baseSepolia(),
		Recipient:        common.HexToAddress("0x1111111111111111111111111111111111111111"),
	}
}

func (f *fixture) phases() []entities.TransferPhase {
	var phases []entities.TransferPhase
	for _, event := range f.events {
		phases = append(phases, event.Phase)
	}
	return phases
}

func TestStart(t *testing.T) {
	t.Run("sufficient allowance skips approval", func(t *testing.T) {
		f := newFixture(t)

		state, err := f.orch.Start(context.Background(), f.request())
		require.NoError(t, err)

		assert.Equal(t, entities.PhaseAttestationReady, state.Phase)
		assert.Equal(t, "0xburn", state.BurnTxHash)
		assert.True(t, state.HasAttestation())
		assert.Zero(t, f.source.approveCalls)
		assert.Equal(t, entities.PhaseChecksAllowance, f.events[0].Phase)
		assert.NotContains(t, f.phases(), entities.PhaseApproving)
	})

	t.Run("short allowance triggers approval before burn", func(t *testing.T) {
		f := newFixture(t)
		f.source.allowance = decimal.NewFromInt(1)

		state, err := f.orch.Start(context.Background(), f.request())
		require.NoError(t, err)

		assert.Equal(t, entities.PhaseAttestationReady, state.Phase)
		assert.Equal(t, 1, f.source.approveCalls)
		phases := f.phases()
		assert.Contains(t, phases, entities.PhaseApproving)
		approvalIdx := indexOf(phases, entities.PhaseApproving)
		burnIdx := indexOf(phases, entities.PhaseBurning)
		assert.Less(t, approvalIdx, burnIdx)
	})

	t.Run("insufficient balance stops before any transaction", func(t *testing.T) {
		f := newFixture(t)
		f.source.balance = decimal.NewFromInt(10)

		state, err := f.orch.Start(context.Background(), f.request())
		assert.Equal(t, entities.KindInsufficientFunds, entities.KindOf(err))
		assert.Equal(t, entities.PhaseFailed, state.Phase)
		assert.Zero(t, f.source.approveCalls)
		assert.Zero(t, f.source.burnCalls)
	})

	t.Run("invalid request never touches the chain", func(t *testing.T) {
		f := newFixture(t)
		req := f.request()
		req.Amount = "-5"

		state, err := f.orch.Start(context.Background(), req)
		assert.Equal(t, entities.KindConfigurationError, entities.KindOf(err))
		assert.Equal(t, entities.PhaseFailed, state.Phase)
		assert.Zero(t, f.source.burnCalls)
	})

	t.Run("attestation timeout preserves the burn hash", func(t *testing.T) {
		f := newFixture(t)
		f.poller.err = entities.NewTransferError(entities.KindAttestationTimeout,
			errors.New("attestation not available after 60 attempts")).WithBurnTxHash("0xburn")

		state, err := f.orch.Start(context.Background(), f.request())
		assert.Equal(t, entities.KindAttestationTimeout, entities.KindOf(err))
		assert.Equal(t, entities.PhaseFailed, state.Phase)
		assert.Equal(t, "0xburn", state.BurnTxHash)
		assert.True(t, state.Resumable())

		var terr *entities.TransferError
		require.ErrorAs(t, err, &terr)
		assert.True(t, terr.Recoverable())
	})

	t.Run("broadcast burn with incomplete receipt wait stays resumable", func(t *testing.T) {
		f := newFixture(t)
		f.source.burnErr = entities.NewTransferError(entities.KindNetworkError,
			errors.New("timed out waiting for receipt"))
		f.source.burnErrHash = "0xburn"

		state, err := f.orch.Start(context.Background(), f.request())
		assert.Equal(t, entities.KindNetworkError, entities.KindOf(err))
		assert.Equal(t, entities.PhaseFailed, state.Phase)
		assert.Equal(t, "0xburn", state.BurnTxHash)
		assert.True(t, state.Resumable())

		var terr *entities.TransferError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, "0xburn", terr.BurnTxHash)
		assert.True(t, terr.Recoverable())
	})

	t.Run("burn failure carries no burn hash", func(t *testing.T) {
		f := newFixture(t)
		f.source.burnErr = entities.NewTransferError(entities.KindBurnFailed, errors.New("execution reverted"))

		state, err := f.orch.Start(context.Background(), f.request())
		assert.Equal(t, entities.KindBurnFailed, entities.KindOf(err))
		assert.Empty(t, state.BurnTxHash)
		assert.False(t, state.Resumable())
	})

	t.Run("declined network switch fails cleanly", func(t *testing.T) {
		f := newFixture(t)
		f.source.switchErr = entities.NewTransferError(entities.KindUserDeclinedSwitch, nil)

		state, err := f.orch.Start(context.Background(), f.request())
		assert.Equal(t, entities.KindUserDeclinedSwitch, entities.KindOf(err))
		assert.Equal(t, entities.PhaseFailed, state.Phase)
		assert.Zero(t, f.source.burnCalls)
	})

	t.Run("mismatched client wiring is a configuration error", func(t *testing.T) {
		f := newFixture(t)
		req := f.request()
		req.DestinationChain = entities.Chain{ID: 421614, Domain: 3}

		_, err := f.orch.Start(context.Background(), req)
		assert.Equal(t, entities.KindConfigurationError, entities.KindOf(err))
	})
}

func TestResume(t *testing.T) {
	t.Run("verifies the burn then polls to attestation ready", func(t *testing.T) {
		f := newFixture(t)

		state, err := f.orch.Resume(context.Background(), "0xburn")
		require.NoError(t, err)

		assert.Equal(t, 1, f.source.verifyCalls)
		assert.Equal(t, entities.PhaseAttestationReady, state.Phase)
		assert.True(t, state.HasAttestation())
		assert.Equal(t, "0xburn", state.BurnTxHash)
	})

	t.Run("rejects an unverifiable burn without polling", func(t *testing.T) {
		f := newFixture(t)
		f.source.verifyErr = entities.NewTransferError(entities.KindBurnFailed,
			errors.New("burn transaction not found"))

		state, err := f.orch.Resume(context.Background(), "0xmissing")
		assert.Equal(t, entities.KindBurnFailed, entities.KindOf(err))
		assert.Equal(t, entities.PhaseFailed, state.Phase)
		assert.Zero(t, f.poller.calls)
	})

	t.Run("rejects an empty hash", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.orch.Resume(context.Background(), "")
		assert.Equal(t, entities.KindConfigurationError, entities.KindOf(err))
		assert.Zero(t, f.source.verifyCalls)
	})
}

func TestComplete(t *testing.T) {
	readyState := func(t *testing.T, f *fixture) *entities.TransferState {
		t.Helper()
		state, err := f.orch.Start(context.Background(), f.request())
		require.NoError(t, err)
		return state
	}

	t.Run("mints and completes", func(t *testing.T) {
		f := newFixture(t)
		state := readyState(t, f)

		state, err := f.orch.Complete(context.Background(), state)
		require.NoError(t, err)

		assert.Equal(t, entities.PhaseCompleted, state.Phase)
		assert.Equal(t, "0xmint", state.MintTxHash)
		assert.Equal(t, 1, f.dest.mintCalls)
		last := f.events[len(f.events)-1]
		assert.Equal(t, entities.PhaseCompleted, last.Phase)
		assert.Contains(t, last.ExplorerURL, "0xmint")
	})

	t.Run("recoverable mint failure keeps the attestation for retry", func(t *testing.T) {
		f := newFixture(t)
		state := readyState(t, f)
		f.dest.mintErr = entities.NewTransferError(entities.KindPossibleDuplicateOrExpired,
			errors.New("missing revert data"))

		state, err := f.orch.Complete(context.Background(), state)
		assert.Equal(t, entities.KindPossibleDuplicateOrExpired, entities.KindOf(err))
		assert.Equal(t, entities.PhaseFailed, state.Phase)
		assert.True(t, state.HasAttestation())
		assert.True(t, state.CanRetryMint())

		f.dest.mintErr = nil
		state, err = f.orch.Complete(context.Background(), state)
		require.NoError(t, err)
		assert.Equal(t, entities.PhaseCompleted, state.Phase)
	})

	t.Run("consumed message blocks further retries", func(t *testing.T) {
		f := newFixture(t)
		state := readyState(t, f)
		f.dest.mintErr = entities.NewTransferError(entities.KindAlreadyConsumedOrExpired,
			errors.New("nonce already used"))

		state, err := f.orch.Complete(context.Background(), state)
		assert.Equal(t, entities.KindAlreadyConsumedOrExpired, entities.KindOf(err))
		assert.False(t, state.CanRetryMint())

		_, err = f.orch.Complete(context.Background(), state)
		assert.Equal(t, entities.KindAlreadyConsumedOrExpired, entities.KindOf(err))
		assert.Equal(t, 1, f.dest.mintCalls)
	})

	t.Run("rejects a state with no attestation", func(t *testing.T) {
		f := newFixture(t)
		state := entities.NewTransferState(f.request())

		_, err := f.orch.Complete(context.Background(), state)
		assert.Equal(t, entities.KindConfigurationError, entities.KindOf(err))
		assert.Zero(t, f.dest.mintCalls)
	})

	t.Run("declined destination switch stays retryable", func(t *testing.T) {
		f := newFixture(t)
		state := readyState(t, f)
		f.dest.switchErr = entities.NewTransferError(entities.KindUserDeclinedSwitch, nil)

		state, err := f.orch.Complete(context.Background(), state)
		assert.Equal(t, entities.KindUserDeclinedSwitch, entities.KindOf(err))
		assert.Zero(t, f.dest.mintCalls)
		assert.True(t, state.HasAttestation())
	})
}

func TestSingleFlight(t *testing.T) {
	f := newFixture(t)
	f.poller.block = make(chan struct{})

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		_, _ = f.orch.Start(context.Background(), f.request())
		close(done)
	}()
	<-started

	// Wait until the first transfer is inside the polling phase
	require.Eventually(t, func() bool {
		f.orch.mu.Lock()
		defer f.orch.mu.Unlock()
		return f.orch.busy
	}, time.Second, time.Millisecond)

	_, err := f.orch.Start(context.Background(), f.request())
	assert.ErrorIs(t, err, ErrBusy)

	_, err = f.orch.Resume(context.Background(), "0xburn")
	assert.ErrorIs(t, err, ErrBusy)

	close(f.poller.block)
	<-done

	// The slot frees up once the first transfer finishes
	_, err = f.orch.Resume(context.Background(), "0xburn")
	require.NoError(t, err)
}

func indexOf(phases []entities.TransferPhase, phase entities.TransferPhase) int {
	for i, p := range phases {
		if p == phase {
			return i
		}
	}
	return -1
}
