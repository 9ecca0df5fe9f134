package domain

import "errors"

var (
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrInvalidDocument signals a document that cannot be stored.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrSessionNotFound signals an unknown search session id.
	ErrSessionNotFound = errors.New("search session not found")
	// ErrActorUnavailable signals that the network actor has stopped accepting commands.
	ErrActorUnavailable = errors.New("network actor unavailable")
	// ErrInvalidQuery signals a query without any usable term.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrPeerUnreachable signals a failed request to a remote peer.
	ErrPeerUnreachable = errors.New("peer unreachable")
)
