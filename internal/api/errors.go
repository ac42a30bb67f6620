package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-registry/internal/device"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest             = "bad_request"
	ErrCodeNotFound               = "not_found"
	ErrCodeUnauthorized           = "unauthorised"
	ErrCodeInternal               = "internal_error"
	ErrCodeUnavailable            = "unavailable"
	ErrCodeDuplicateID            = "duplicate_id"
	ErrCodeOwnershipLimitExceeded = "ownership_limit_exceeded"
	ErrCodeCounterOverflow        = "counter_overflow"
	ErrCodeContention             = "store_contention"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeRegistryError maps registry errors onto HTTP responses. Anything
// unrecognised is logged by the caller and reported as a 500.
func writeRegistryError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, device.ErrDuplicateID):
		writeError(w, http.StatusConflict, ErrCodeDuplicateID, "device id already registered")
	case errors.Is(err, device.ErrOwnershipLimitExceeded):
		writeError(w, http.StatusConflict, ErrCodeOwnershipLimitExceeded, "ownership limit reached")
	case errors.Is(err, device.ErrCounterOverflow):
		writeError(w, http.StatusInsufficientStorage, ErrCodeCounterOverflow, "registry is full")
	case errors.Is(err, device.ErrStoreContention):
		writeError(w, http.StatusServiceUnavailable, ErrCodeContention, "registry busy, retry later")
	case errors.Is(err, device.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "device not found")
	case errors.Is(err, device.ErrInvalidID), errors.Is(err, device.ErrInvalidOwner):
		writeBadRequest(w, err.Error())
	default:
		return false
	}
	return true
}
