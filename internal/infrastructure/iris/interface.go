package iris

import "context"

// AttestationAPI defines the interface for attestation service operations
type AttestationAPI interface {
	// MessagesByTx fetches the messages emitted by a burn transaction on the
	// given source domain. Returns ErrNotReady while the service has not yet
	// observed the burn.
	MessagesByTx(ctx context.Context, domain uint32, txHash string) (*MessagesResponse, error)

	// Fees retrieves current transfer fees between two domains
	Fees(ctx context.Context, sourceDomain, destDomain uint32) (*FeesResponse, error)
}

// Ensure Client implements AttestationAPI interface
var _ AttestationAPI = (*Client)(nil)
