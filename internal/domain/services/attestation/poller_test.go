package attestation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fundbridge/fundbridge/internal/domain/entities"
	"github.com/fundbridge/fundbridge/internal/infrastructure/iris"
)

type scriptedAPI struct {
	calls     int
	responses []func() (*iris.MessagesResponse, error)
}

func (s *scriptedAPI) MessagesByTx(ctx context.Context, domain uint32, txHash string) (*iris.MessagesResponse, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx]()
}

func notReady() (*iris.MessagesResponse, error) {
	return nil, iris.ErrNotReady
}

func transportError() (*iris.MessagesResponse, error) {
	return nil, errors.New("connection refused")
}

func complete(sourceDomain uint32) func() (*iris.MessagesResponse, error) {
	return func() (*iris.MessagesResponse, error) {
		return &iris.MessagesResponse{Messages: []iris.Message{{
			Status:       iris.StatusComplete,
			Message:      "0x0102",
			Attestation:  "0x0304",
			SourceDomain: sourceDomain,
		}}}, nil
	}
}

func pending(sourceDomain uint32) func() (*iris.MessagesResponse, error) {
	return func() (*iris.MessagesResponse, error) {
		return &iris.MessagesResponse{Messages: []iris.Message{{
			Status:       iris.StatusPendingConfirmations,
			SourceDomain: sourceDomain,
		}}}, nil
	}
}

func newTestPoller(api MessagesAPI, opts ...Option) (*Poller, *[]time.Duration) {
	p := NewPoller(api, zap.NewNop(), opts...)
	var slept []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return p, &slept
}

func sourceChain() entities.Chain {
	return entities.Chain{ID: 11155111, Name: "Ethereum Sepolia", Domain: 0, ExplorerURL: "https://sepolia.etherscan.io"}
}

func TestAwaitAttestation(t *testing.T) {
	const burnHash = "0xdeadbeef"

	t.Run("returns payloads once the attestation completes", func(t *testing.T) {
		api := &scriptedAPI{responses: []func() (*iris.MessagesResponse, error){
			notReady, notReady, complete(0),
		}}
		poller, _ := newTestPoller(api)

		message, attestation, err := poller.AwaitAttestation(context.Background(), burnHash, sourceChain(), nil)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01, 0x02}, []byte(message))
		assert.Equal(t, []byte{0x03, 0x04}, []byte(attestation))
		assert.Equal(t, 3, api.calls)
	})

	t.Run("pending message keeps polling", func(t *testing.T) {
		api := &scriptedAPI{responses: []func() (*iris.MessagesResponse, error){
			pending(0), complete(0),
		}}
		poller, _ := newTestPoller(api)

		_, _, err := poller.AwaitAttestation(context.Background(), burnHash, sourceChain(), nil)
		require.NoError(t, err)
		assert.Equal(t, 2, api.calls)
	})

	t.Run("bounded by the attempt budget", func(t *testing.T) {
		api := &scriptedAPI{responses: []func() (*iris.MessagesResponse, error){notReady}}
		poller, slept := newTestPoller(api, WithMaxAttempts(5))

		_, _, err := poller.AwaitAttestation(context.Background(), burnHash, sourceChain(), nil)
		assert.Equal(t, entities.KindAttestationTimeout, entities.KindOf(err))
		assert.Equal(t, 5, api.calls)

		// One wait between each pair of attempts, each the full interval
		require.Len(t, *slept, 4)
		for _, d := range *slept {
			assert.Equal(t, DefaultInterval, d)
		}

		var terr *entities.TransferError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, burnHash, terr.BurnTxHash)
		assert.True(t, terr.Recoverable())
	})

	t.Run("attempts are spaced by the configured interval", func(t *testing.T) {
		api := &scriptedAPI{responses: []func() (*iris.MessagesResponse, error){
			notReady, notReady, complete(0),
		}}
		poller, slept := newTestPoller(api, WithInterval(7*time.Second))

		_, _, err := poller.AwaitAttestation(context.Background(), burnHash, sourceChain(), nil)
		require.NoError(t, err)
		require.Len(t, *slept, 2)
		for _, d := range *slept {
			assert.Equal(t, 7*time.Second, d)
		}
	})

	t.Run("consecutive transport failures shrink the budget", func(t *testing.T) {
		api := &scriptedAPI{responses: []func() (*iris.MessagesResponse, error){transportError}}
		poller, _ := newTestPoller(api, WithMaxAttempts(60))

		_, _, err := poller.AwaitAttestation(context.Background(), burnHash, sourceChain(), nil)
		assert.Equal(t, entities.KindAttestationTimeout, entities.KindOf(err))
		assert.Less(t, api.calls, 60)
	})

	t.Run("emits progress events with attempt counters", func(t *testing.T) {
		api := &scriptedAPI{responses: []func() (*iris.MessagesResponse, error){
			notReady, complete(0),
		}}
		poller, _ := newTestPoller(api)

		var events []entities.StatusEvent
		_, _, err := poller.AwaitAttestation(context.Background(), burnHash, sourceChain(), func(event entities.StatusEvent) {
			events = append(events, event)
		})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, entities.PhaseAwaitingAttestation, events[0].Phase)
		assert.Equal(t, 1, events[0].Attempt)
		assert.Equal(t, 2, events[1].Attempt)
		assert.Equal(t, burnHash, events[0].TxHash)
		assert.Contains(t, events[0].ExplorerURL, burnHash)
	})

	t.Run("cancellation keeps the burn hash recoverable", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		api := &scriptedAPI{responses: []func() (*iris.MessagesResponse, error){
			func() (*iris.MessagesResponse, error) {
				cancel()
				return nil, iris.ErrNotReady
			},
		}}
		poller, _ := newTestPoller(api)

		_, _, err := poller.AwaitAttestation(ctx, burnHash, sourceChain(), nil)
		assert.Equal(t, entities.KindAttestationTimeout, entities.KindOf(err))

		var terr *entities.TransferError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, burnHash, terr.BurnTxHash)
	})

	t.Run("wrong source domain is a configuration error", func(t *testing.T) {
		api := &scriptedAPI{responses: []func() (*iris.MessagesResponse, error){complete(3)}}
		poller, _ := newTestPoller(api)

		_, _, err := poller.AwaitAttestation(context.Background(), burnHash, sourceChain(), nil)
		assert.Equal(t, entities.KindConfigurationError, entities.KindOf(err))
	})

	t.Run("empty burn hash is rejected", func(t *testing.T) {
		poller, _ := newTestPoller(&scriptedAPI{responses: []func() (*iris.MessagesResponse, error){notReady}})

		_, _, err := poller.AwaitAttestation(context.Background(), "", sourceChain(), nil)
		assert.Equal(t, entities.KindConfigurationError, entities.KindOf(err))
	})
}
