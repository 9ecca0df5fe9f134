package peer

import (
	"github.com/kailas-cloud/peersearch/internal/domain"
	"github.com/kailas-cloud/peersearch/internal/domain/document"
)

// Peer endpoints.
const (
	FilterPath = "/peer/filter"
	QueryPath  = "/peer/query"
)

// FilterResponse is served on FilterPath. Data holds the zstd-compressed buckets.
type FilterResponse struct {
	Peer domain.PeerID `json:"peer"`
	Size int           `json:"size"`
	Data []byte        `json:"data"`
}

// QueryResponse is served on QueryPath.
type QueryResponse struct {
	Peer  domain.PeerID    `json:"peer"`
	Items []document.Match `json:"items"`
}
