package api

import (
	"encoding/json"
	"net/http"

	"oracle-protocol/internal/registry"
	"oracle-protocol/internal/runtime"
)

// Request errors that never reach the registry.
const (
	codeBadRequest = "bad_request"
	codeNotFound   = "not_found"
	codeUnhealthy  = "unhealthy"
)

// errorResponse is the body of every non-2xx reply. Internal errors carry no
// description.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// statusOf maps a result code to its HTTP status.
func statusOf(code string) int {
	switch code {
	case registry.CodeOK:
		return http.StatusOK
	case registry.CodeAlreadyExists:
		return http.StatusConflict
	case registry.CodeProviderNotFound, registry.CodeOracleNotFound, codeNotFound:
		return http.StatusNotFound
	case registry.CodeUnauthorized, runtime.CodeBadSignature:
		return http.StatusForbidden
	case registry.CodeAccountMismatch,
		registry.CodeInvalidName,
		registry.CodeInvalidCapacity,
		registry.CodeInvalidAttributes,
		registry.CodeDerivationExhausted,
		runtime.CodeUnknownProgram,
		runtime.CodeUnknownInstruction,
		runtime.CodeMalformedInstruction,
		runtime.CodeMissingAccounts,
		codeBadRequest:
		return http.StatusBadRequest
	case codeUnhealthy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError replies with the result code of err.
func writeError(w http.ResponseWriter, err error) {
	writeCode(w, runtime.Code(err), err.Error())
}

func writeCode(w http.ResponseWriter, code, description string) {
	status := statusOf(code)
	if status == http.StatusInternalServerError {
		description = ""
	}
	writeJSON(w, status, errorResponse{Error: code, Description: description})
}
