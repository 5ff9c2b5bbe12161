package evm

import (
	"errors"
	"strings"

	"github.com/fundbridge/fundbridge/internal/domain/entities"
)

// Revert and transport error classification. Node error strings are not
// standardized, so matching is lowercase substring based, most specific
// patterns first.

var mintRevertPatterns = []struct {
	needle string
	kind   entities.ErrorKind
}{
	{"nonce already used", entities.KindAlreadyConsumedOrExpired},
	{"already received", entities.KindAlreadyConsumedOrExpired},
	{"already used", entities.KindAlreadyConsumedOrExpired},
	{"message expired", entities.KindAlreadyConsumedOrExpired},
	{"expired", entities.KindAlreadyConsumedOrExpired},
	{"invalid attestation", entities.KindInvalidAttestation},
	{"invalid signature", entities.KindInvalidAttestation},
	{"invalid message", entities.KindInvalidAttestation},
	{"malformed", entities.KindInvalidAttestation},
}

var commonPatterns = []struct {
	needle string
	kind   entities.ErrorKind
}{
	{"user denied", entities.KindTransactionRejected},
	{"user rejected", entities.KindTransactionRejected},
	{"rejected by user", entities.KindTransactionRejected},
	{"insufficient funds", entities.KindInsufficientFunds},
	{"connection refused", entities.KindNetworkError},
	{"context deadline exceeded", entities.KindNetworkError},
	{"no such host", entities.KindNetworkError},
	{"i/o timeout", entities.KindNetworkError},
	{"eof", entities.KindNetworkError},
}

// classifySendError maps an approval or burn submission failure onto the
// error taxonomy, falling back to the phase's own kind when the node's error
// text matches nothing known.
func classifySendError(err error, fallback entities.ErrorKind) *entities.TransferError {
	if te, ok := asTransferError(err); ok {
		return te
	}
	msg := strings.ToLower(err.Error())
	for _, p := range commonPatterns {
		if strings.Contains(msg, p.needle) {
			return entities.NewTransferError(p.kind, err)
		}
	}
	return entities.NewTransferError(fallback, err)
}

// classifyMintError maps a receiveMessage failure onto the taxonomy. A revert
// that carries no usable reason, which is what an already consumed or expired
// message usually produces, maps to the ambiguous duplicate-or-expired kind
// rather than a confident one.
func classifyMintError(err error) *entities.TransferError {
	if te, ok := asTransferError(err); ok {
		return te
	}
	msg := strings.ToLower(err.Error())
	for _, p := range mintRevertPatterns {
		if strings.Contains(msg, p.needle) {
			return entities.NewTransferError(p.kind, err)
		}
	}
	for _, p := range commonPatterns {
		if strings.Contains(msg, p.needle) {
			return entities.NewTransferError(p.kind, err)
		}
	}
	if strings.Contains(msg, "missing revert data") || strings.Contains(msg, "execution reverted") {
		return entities.NewTransferError(entities.KindPossibleDuplicateOrExpired, err)
	}
	return entities.NewTransferError(entities.KindPossibleDuplicateOrExpired, err)
}

func asTransferError(err error) (*entities.TransferError, bool) {
	var te *entities.TransferError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
