package query

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kailas-cloud/peersearch/internal/domain"
)

// ErrDecode signals a query payload that cannot be turned back into a Query.
var ErrDecode = errors.New("query: decode failure")

// MarshalBinary encodes the query for the wire. A tree that would not decode
// back, such as the zero Query, is refused with domain.ErrInvalidQuery.
func (q Query) MarshalBinary() ([]byte, error) {
	if err := q.Root.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}
	data, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	return data, nil
}

// UnmarshalBinary decodes data produced by MarshalBinary.
func (q *Query) UnmarshalBinary(data []byte) error {
	var decoded Query
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := decoded.Root.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	*q = decoded
	return nil
}

// FromBytes decodes a query, wrapping any failure in ErrDecode.
func FromBytes(data []byte) (Query, error) {
	var q Query
	if err := q.UnmarshalBinary(data); err != nil {
		return Query{}, err
	}
	return q, nil
}
