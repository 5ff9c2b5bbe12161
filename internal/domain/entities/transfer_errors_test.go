package entities

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransferErrorRecoverable(t *testing.T) {
	t.Run("attestation timeout with burn hash", func(t *testing.T) {
		terr := NewTransferError(KindAttestationTimeout, nil).WithBurnTxHash("0xburn")
		assert.True(t, terr.Recoverable())
	})

	t.Run("attestation timeout without burn hash", func(t *testing.T) {
		terr := NewTransferError(KindAttestationTimeout, nil)
		assert.False(t, terr.Recoverable())
	})

	t.Run("mint-phase ambiguities stay recoverable", func(t *testing.T) {
		for _, kind := range []ErrorKind{
			KindNetworkError,
			KindNetworkSwitchRequired,
			KindUserDeclinedSwitch,
			KindInsufficientFunds,
			KindPossibleDuplicateOrExpired,
			KindInvalidAttestation,
		} {
			assert.True(t, NewTransferError(kind, nil).Recoverable(), "kind %s", kind)
		}
	})

	t.Run("consumed message is not recoverable", func(t *testing.T) {
		assert.False(t, NewTransferError(KindAlreadyConsumedOrExpired, nil).Recoverable())
	})
}

func TestTransferErrorFatal(t *testing.T) {
	assert.True(t, NewTransferError(KindSignerNotBound, nil).Fatal())
	assert.True(t, NewTransferError(KindConfigurationError, nil).Fatal())
	assert.False(t, NewTransferError(KindNetworkError, nil).Fatal())
}

func TestTransferErrorGuidance(t *testing.T) {
	// Every kind carries user-facing guidance
	kinds := []ErrorKind{
		KindSignerNotBound, KindConfigurationError, KindNetworkError,
		KindUserDeclinedSwitch, KindUnsupportedNetwork, KindNetworkSwitchRequired,
		KindTransactionRejected, KindInsufficientFunds, KindApprovalFailed,
		KindBurnFailed, KindAttestationTimeout, KindAlreadyConsumedOrExpired,
		KindInvalidAttestation, KindPossibleDuplicateOrExpired,
	}
	for _, kind := range kinds {
		assert.NotEmpty(t, NewTransferError(kind, nil).Guidance, "kind %s", kind)
	}
}

func TestTransferErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	terr := NewTransferError(KindNetworkError, cause)

	assert.ErrorIs(t, terr, cause)
	assert.Contains(t, terr.Error(), "connection refused")
}

func TestKindOf(t *testing.T) {
	terr := NewTransferError(KindBurnFailed, nil)

	assert.Equal(t, KindBurnFailed, KindOf(terr))
	assert.Equal(t, KindBurnFailed, KindOf(fmt.Errorf("outer: %w", terr)))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}
