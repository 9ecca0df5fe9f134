package domain

// LocalCid identifies a document inside the local index.
// It stays stable while the document is indexed and is never handed to another document meanwhile.
type LocalCid uint32

// PeerID identifies the node that produced a search result.
type PeerID string

func (p PeerID) String() string { return string(p) }
