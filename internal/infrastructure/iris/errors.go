package iris

import "fmt"

// ErrorResponse represents an attestation API error response
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("iris API error [%d]: %s (code: %s)", e.StatusCode, e.Message, e.Code)
}

func (e *ErrorResponse) IsRateLimited() bool {
	return e.StatusCode == 429
}

// ErrNotReady indicates the burn has not reached the finality threshold the
// attestation service requires; the caller keeps polling. Covers 404 responses
// and pending statuses alike.
var ErrNotReady = fmt.Errorf("attestation not yet available")
