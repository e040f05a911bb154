package httpapi

import (
	"net/http"

	"github.com/user/parley/internal/types"
)

// statusFor maps an error kind to the HTTP status for endpoints that surface
// failures directly. Client-caused kinds (validation, not-found, unsupported
// format) answer 400; server-caused kinds answer 500. The chat endpoint
// handles model failures separately (it degrades to a fallback response
// instead of an error status).
func statusFor(kind types.ErrorKind) int {
	switch kind {
	case types.KindValidation, types.KindNotFound, types.KindUnsupportedFormat:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// safeMessage returns a client-facing message for an error kind. Internal
// detail stays in the logs.
func safeMessage(kind types.ErrorKind) string {
	switch kind {
	case types.KindValidation:
		return "invalid request"
	case types.KindNotFound:
		return "not found"
	case types.KindUnsupportedFormat:
		return "unsupported image format"
	case types.KindModel:
		return "the assistant is temporarily unavailable"
	default:
		return "internal server error"
	}
}
