package chi

import (
	"github.com/kailas-cloud/peersearch/internal/domain"
	domdoc "github.com/kailas-cloud/peersearch/internal/domain/document"
)

// ErrorCode is a machine-readable error identifier.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeInvalidQuery     ErrorCode = "invalid_query"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeDocumentNotFound ErrorCode = "document_not_found"
	CodeSessionNotFound  ErrorCode = "session_not_found"
	CodeActorUnavailable ErrorCode = "actor_unavailable"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// HelloResponse identifies the node.
type HelloResponse struct {
	Name    string        `json:"name"`
	Peer    domain.PeerID `json:"peer"`
	Version string        `json:"version"`
}

// LocalSearchResponse lists local matches in ranking order.
type LocalSearchResponse struct {
	Items []domdoc.Match `json:"items"`
	Total int            `json:"total"`
}

// SearchResponse carries the id of a started network search.
type SearchResponse struct {
	ID string `json:"id"`
}

// UpsertDocumentRequest is the body of PUT /documents/{cid}.
type UpsertDocumentRequest struct {
	HTML  string   `json:"html"`
	Paths []string `json:"paths"`
}

// DocumentResponse describes a stored document without its markup.
type DocumentResponse struct {
	CID   string   `json:"cid"`
	Paths []string `json:"paths"`
}

// HealthResponse aggregates component checks.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
