package iris

const (
	// API hosts
	MainnetURL = "https://iris-api.circle.com"
	SandboxURL = "https://iris-api-sandbox.circle.com"

	// Rate limiting
	MaxRequestsPerSecond = 35

	// Attestation statuses
	StatusPendingConfirmations = "pending_confirmations"
	StatusComplete             = "complete"
)
