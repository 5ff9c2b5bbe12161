package entities

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed taxonomy every chain, wallet, or attestation failure
// resolves to before it reaches a caller. Raw provider errors never escape the
// client boundary.
type ErrorKind string

const (
	// KindSignerNotBound is a programming error: a state-changing call was made
	// on a client with no signer attached. Fatal, never retried.
	KindSignerNotBound ErrorKind = "signer_not_bound"

	// KindConfigurationError means a contract address for a chain is missing or
	// has no deployed code. Fatal for this configuration.
	KindConfigurationError ErrorKind = "configuration_error"

	// KindNetworkError covers RPC transport failures: timeouts, connectivity,
	// 5xx responses. Reads retry a bounded number of times; writes surface it.
	KindNetworkError ErrorKind = "network_error"

	// KindUserDeclinedSwitch means the wallet refused to change networks.
	KindUserDeclinedSwitch ErrorKind = "user_declined_switch"

	// KindUnsupportedNetwork means the wallet cannot switch to the requested
	// chain at all.
	KindUnsupportedNetwork ErrorKind = "unsupported_network"

	// KindNetworkSwitchRequired means the active network does not match the
	// chain a state-changing call targets and no switch was performed.
	KindNetworkSwitchRequired ErrorKind = "network_switch_required"

	// KindTransactionRejected means the user declined to sign.
	KindTransactionRejected ErrorKind = "transaction_rejected"

	// KindInsufficientFunds means the signing account cannot cover gas.
	KindInsufficientFunds ErrorKind = "insufficient_funds"

	// KindApprovalFailed is an on-chain revert during the approve step. No
	// funds are at risk; the caller restarts with a new request.
	KindApprovalFailed ErrorKind = "approval_failed"

	// KindBurnFailed is an on-chain revert during the burn step. No funds are
	// at risk; the caller restarts with a new request.
	KindBurnFailed ErrorKind = "burn_failed"

	// KindAttestationTimeout means the polling budget ran out. The burn already
	// happened on-chain, so this is never fatal to funds: the transfer resumes
	// from the retained burn transaction hash.
	KindAttestationTimeout ErrorKind = "attestation_timeout"

	// KindAlreadyConsumedOrExpired means the mint reverted because the message
	// was already used or is stale.
	KindAlreadyConsumedOrExpired ErrorKind = "already_consumed_or_expired"

	// KindInvalidAttestation means the mint reverted on a bad signature or a
	// malformed message.
	KindInvalidAttestation ErrorKind = "invalid_attestation"

	// KindPossibleDuplicateOrExpired is an opaque mint revert with no decodable
	// reason. Empirically this is almost always an already-used message, but
	// the chain does not report enough to disambiguate, so both guidances are
	// combined rather than guessing a finer cause.
	KindPossibleDuplicateOrExpired ErrorKind = "possible_duplicate_or_expired"
)

// guidance maps each kind to the plain-language explanation shown to users.
var guidance = map[ErrorKind]string{
	KindSignerNotBound:             "internal error: no signer bound to the chain client",
	KindConfigurationError:         "a contract address for this chain is missing or invalid; check the chain configuration",
	KindNetworkError:               "the network request failed; check connectivity and try again",
	KindUserDeclinedSwitch:         "the network switch was declined in the wallet; switch networks and retry",
	KindUnsupportedNetwork:         "the wallet does not support the required network",
	KindNetworkSwitchRequired:      "the wallet is on the wrong network for this step; switch networks and retry",
	KindTransactionRejected:        "the transaction was declined in the wallet",
	KindInsufficientFunds:          "not enough native token to cover gas fees on this chain",
	KindApprovalFailed:             "the token approval failed on-chain; no funds were moved, start a new transfer",
	KindBurnFailed:                 "the burn transaction failed on-chain; no funds were moved, start a new transfer",
	KindAttestationTimeout:         "the attestation did not arrive in time; your burn succeeded and the transfer can be resumed with the burn transaction hash",
	KindAlreadyConsumedOrExpired:   "this transfer may already be complete: each message can only be minted once. Check the destination balance before retrying",
	KindInvalidAttestation:         "the attestation data is invalid or corrupted; request the attestation again",
	KindPossibleDuplicateOrExpired: "the mint would fail without a stated reason; most likely the message was already used or has expired. Check the destination balance, and start a fresh transfer if funds did not arrive",
}

// TransferError is the only error type the orchestrator surfaces. Detail holds
// the raw provider error as diagnostics; Guidance is the user-facing message.
type TransferError struct {
	Kind       ErrorKind
	Guidance   string
	BurnTxHash string // set whenever recovery needs it
	Detail     error
}

// NewTransferError builds an error of the given kind with its standard guidance
func NewTransferError(kind ErrorKind, detail error) *TransferError {
	return &TransferError{
		Kind:     kind,
		Guidance: guidance[kind],
		Detail:   detail,
	}
}

func (e *TransferError) Error() string {
	if e.Detail != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Guidance, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Guidance)
}

func (e *TransferError) Unwrap() error {
	return e.Detail
}

// WithBurnTxHash attaches the hash needed to recover the transfer
func (e *TransferError) WithBurnTxHash(hash string) *TransferError {
	e.BurnTxHash = hash
	return e
}

// Recoverable reports whether the same transfer can still reach completion:
// attestation timeouts resume from the burn hash, and every mint-phase revert
// except a consumed message keeps the attestation live for retries.
func (e *TransferError) Recoverable() bool {
	switch e.Kind {
	case KindAttestationTimeout:
		return e.BurnTxHash != ""
	case KindNetworkError, KindNetworkSwitchRequired, KindUserDeclinedSwitch,
		KindInsufficientFunds, KindPossibleDuplicateOrExpired, KindInvalidAttestation:
		return true
	default:
		return false
	}
}

// Fatal reports contract-level misuse that retrying cannot fix.
func (e *TransferError) Fatal() bool {
	return e.Kind == KindSignerNotBound || e.Kind == KindConfigurationError
}

// KindOf extracts the taxonomy kind from any error, empty if err is not a
// TransferError.
func KindOf(err error) ErrorKind {
	var terr *TransferError
	if errors.As(err, &terr) {
		return terr.Kind
	}
	return ""
}
