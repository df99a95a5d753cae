// Package shared holds the helpers every handler uses to turn domain results
// into HTTP responses.
package shared

import (
	"encoding/json"
	"net/http"

	"geekship/pkg/domerrors"
)

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteError maps a domain error code to an HTTP status and renders the
// taxonomy code so the calling layer can show an actionable message.
func WriteError(w http.ResponseWriter, err error) {
	code := domerrors.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(code))
	_ = json.NewEncoder(w).Encode(errorBody{
		Error:       string(code),
		Description: domerrors.Message(err),
	})
}

func statusFor(code domerrors.Code) int {
	switch code {
	case domerrors.CodeUnauthorized, domerrors.CodeSelfApproval, domerrors.CodeSelfInterest, domerrors.CodeRegionMismatch:
		return http.StatusForbidden
	case domerrors.CodeWrongState:
		return http.StatusConflict
	case domerrors.CodeDuplicate:
		return http.StatusConflict
	case domerrors.CodeInsufficientPayment:
		return http.StatusPaymentRequired
	case domerrors.CodeBidTooHigh, domerrors.CodeInvalidInput:
		return http.StatusUnprocessableEntity
	case domerrors.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON renders a success payload.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// Decode parses a JSON request body into dst with a domain-coded failure.
func Decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domerrors.Wrap(err, domerrors.CodeInvalidInput, "invalid request body")
	}
	return nil
}
