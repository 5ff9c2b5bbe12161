package attestation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/fundbridge/fundbridge/internal/domain/entities"
	"github.com/fundbridge/fundbridge/internal/infrastructure/evm"
	"github.com/fundbridge/fundbridge/internal/infrastructure/iris"
)

const (
	// DefaultInterval and DefaultMaxAttempts bound the wait at five minutes,
	// comfortably past the standard finality window on the supported testnets.
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 60

	// After this many consecutive transport failures the remaining attempt
	// budget is halved, so a dead attestation service fails in minutes rather
	// than the full window.
	transportFailureTolerance = 3
)

// MessagesAPI is the slice of the attestation service client the poller needs
type MessagesAPI interface {
	MessagesByTx(ctx context.Context, domain uint32, txHash string) (*iris.MessagesResponse, error)
}

// Notifier receives progress events during polling
type Notifier = func(event entities.StatusEvent)

// Poller repeatedly queries the attestation service for a burn transaction
// until the signed attestation is available or the attempt budget runs out.
type Poller struct {
	api         MessagesAPI
	logger      *zap.Logger
	interval    time.Duration
	maxAttempts int

	// sleep is replaced in tests to avoid real waiting
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Poller
type Option func(*Poller)

// WithInterval overrides the delay between polling attempts
func WithInterval(interval time.Duration) Option {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithMaxAttempts overrides the polling attempt budget
func WithMaxAttempts(attempts int) Option {
	return func(p *Poller) {
		if attempts > 0 {
			p.maxAttempts = attempts
		}
	}
}

// NewPoller builds a poller over the attestation service client
func NewPoller(api MessagesAPI, logger *zap.Logger, opts ...Option) *Poller {
	p := &Poller{
		api:         api,
		logger:      logger,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		sleep:       ctxSleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AwaitAttestation polls until the burn's attestation is complete and returns
// the raw message and attestation bytes. Every error carries the burn hash so
// the caller can resume later.
func (p *Poller) AwaitAttestation(ctx context.Context, burnTxHash string, sourceChain entities.Chain, notify Notifier) (hexutil.Bytes, hexutil.Bytes, error) {
	if burnTxHash == "" {
		return nil, nil, entities.NewTransferError(entities.KindConfigurationError,
			fmt.Errorf("burn transaction hash is required"))
	}

	budget := p.maxAttempts
	consecutiveFailures := 0

	for attempt := 1; attempt <= budget; attempt++ {
		if notify != nil {
			notify(entities.StatusEvent{
				Phase:       entities.PhaseAwaitingAttestation,
				Label:       fmt.Sprintf("Waiting for attestation (%d/%d)", attempt, budget),
				TxHash:      burnTxHash,
				ExplorerURL: sourceChain.TxURL(burnTxHash),
				Attempt:     attempt,
				MaxAttempts: budget,
			})
		}

		resp, err := p.api.MessagesByTx(ctx, sourceChain.Domain, burnTxHash)
		switch {
		case err == nil:
			consecutiveFailures = 0
			message, attestation, found, convErr := p.extract(resp, sourceChain.Domain, burnTxHash)
			if convErr != nil {
				return nil, nil, convErr
			}
			if found {
				p.logger.Info("Attestation complete",
					zap.String("burn_tx_hash", burnTxHash),
					zap.Int("attempts", attempt))
				return message, attestation, nil
			}
		case errors.Is(err, iris.ErrNotReady):
			consecutiveFailures = 0
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, nil, entities.NewTransferError(entities.KindAttestationTimeout, err).
				WithBurnTxHash(burnTxHash)
		default:
			consecutiveFailures++
			p.logger.Warn("Attestation query failed",
				zap.String("burn_tx_hash", burnTxHash),
				zap.Int("attempt", attempt),
				zap.Int("consecutive_failures", consecutiveFailures),
				zap.Error(err))
			if consecutiveFailures >= transportFailureTolerance {
				remaining := budget - attempt
				budget = attempt + remaining/2
				consecutiveFailures = 0
			}
		}

		if attempt == budget {
			break
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			return nil, nil, entities.NewTransferError(entities.KindAttestationTimeout, err).
				WithBurnTxHash(burnTxHash)
		}
	}

	return nil, nil, entities.NewTransferError(entities.KindAttestationTimeout,
		fmt.Errorf("attestation not available after %d attempts", budget)).
		WithBurnTxHash(burnTxHash)
}

// extract finds the ready message for the source domain and decodes its
// payloads. A ready message from the wrong domain is a configuration problem,
// not something more polling can fix.
func (p *Poller) extract(resp *iris.MessagesResponse, sourceDomain uint32, burnTxHash string) (hexutil.Bytes, hexutil.Bytes, bool, error) {
	for _, msg := range resp.Messages {
		if !msg.Ready() {
			continue
		}
		if msg.SourceDomain != sourceDomain {
			return nil, nil, false, entities.NewTransferError(entities.KindConfigurationError,
				fmt.Errorf("attestation for %s reports source domain %d, expected %d",
					burnTxHash, msg.SourceDomain, sourceDomain)).
				WithBurnTxHash(burnTxHash)
		}
		message, err := evm.DecodeHexPayload(msg.Message)
		if err != nil {
			return nil, nil, false, entities.NewTransferError(entities.KindInvalidAttestation, err).
				WithBurnTxHash(burnTxHash)
		}
		attestation, err := evm.DecodeHexPayload(msg.Attestation)
		if err != nil {
			return nil, nil, false, entities.NewTransferError(entities.KindInvalidAttestation, err).
				WithBurnTxHash(burnTxHash)
		}
		return message, attestation, true, nil
	}
	return nil, nil, false, nil
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
