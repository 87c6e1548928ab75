// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request plumbing shared by all API surfaces.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorCode identifies a machine-readable error class in the response envelope.
type ErrorCode string

const (
	CodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	CodeOrgContextMissing   ErrorCode = "ORG_CONTEXT_MISSING"
	CodePermissionDenied    ErrorCode = "PERMISSION_DENIED"
	CodeLastAdminProtection ErrorCode = "LAST_ADMIN_PROTECTION"
	CodeMemberNotFound      ErrorCode = "MEMBER_NOT_FOUND"
	CodeDuplicateMember     ErrorCode = "DUPLICATE_MEMBER"
	CodeInvalidRole         ErrorCode = "INVALID_ROLE"
	CodeBadRequest          ErrorCode = "BAD_REQUEST"
	CodeInternal            ErrorCode = "INTERNAL"
)

// ErrorResponse is the standard error payload: {error, code, message}
type ErrorResponse struct {
	Error   string    `json:"error"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorCode writes the standard error envelope with the given status
func WriteErrorCode(w http.ResponseWriter, status int, code ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Code:    code,
		Message: message,
	})
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, code ErrorCode, message string) {
	WriteErrorCode(w, http.StatusForbidden, code, message)
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, code ErrorCode, message string) {
	WriteErrorCode(w, http.StatusConflict, code, message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, code ErrorCode, message string) {
	WriteErrorCode(w, http.StatusNotFound, code, message)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, code ErrorCode, message string) {
	WriteErrorCode(w, http.StatusBadRequest, code, message)
}

// WriteInternalError writes an internal server error response (500)
func WriteInternalError(w http.ResponseWriter, err error) {
	msg := "internal server error"
	if err != nil {
		msg = err.Error()
	}
	WriteErrorCode(w, http.StatusInternalServerError, CodeInternal, msg)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
