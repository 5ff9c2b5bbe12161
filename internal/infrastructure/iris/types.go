package iris

// MessagesResponse represents the response from the attestation API
type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

// Message represents a single CCTP message with its attestation
type Message struct {
	Attestation       string `json:"attestation"`
	Message           string `json:"message"`
	EventNonce        string `json:"eventNonce"`
	Status            string `json:"status"`
	CctpVersion       int    `json:"cctpVersion"`
	SourceDomain      uint32 `json:"sourceDomain"`
	DestinationDomain uint32 `json:"destinationDomain"`
}

// Ready reports whether the message carries a usable signed attestation
func (m Message) Ready() bool {
	return m.Status == StatusComplete && m.Message != "" && m.Attestation != ""
}

// FeesResponse represents the fees for a cross-chain transfer
type FeesResponse struct {
	SourceDomain      uint32 `json:"sourceDomain"`
	DestinationDomain uint32 `json:"destinationDomain"`
	FastTransferFee   Fee    `json:"fastTransferFee"`
	StandardFee       Fee    `json:"standardFee"`
}

// Fee represents fee details
type Fee struct {
	MinimumFee uint64 `json:"minimumFee"` // in basis points
}
