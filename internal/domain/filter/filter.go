// Package filter implements the compact, approximate weight structure that peers exchange
// instead of their full index.
package filter

import (
	"errors"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// DefaultSize is the number of buckets used when the configuration does not say otherwise.
const DefaultSize = 125000

// ErrInvalidSize signals a filter payload with no buckets.
var ErrInvalidSize = errors.New("filter: size must be positive")

// Filter maps string keys to non-negative weights over a fixed number of buckets.
// Colliding keys share a bucket, so a lookup may over-report (false positive)
// but never reports zero for a key that was added with a positive weight.
type Filter struct {
	buckets []uint8
}

// New creates an empty filter with size buckets.
func New(size int) *Filter {
	if size <= 0 {
		size = DefaultSize
	}
	return &Filter{buckets: make([]uint8, size)}
}

// FromBytes restores a filter from its bucket dump.
func FromBytes(data []byte) (*Filter, error) {
	if len(data) == 0 {
		return nil, ErrInvalidSize
	}
	buckets := make([]uint8, len(data))
	copy(buckets, data)
	return &Filter{buckets: buckets}, nil
}

// Size returns the number of buckets.
func (f *Filter) Size() int { return len(f.buckets) }

// Add raises the weight of key by weight, saturating at the bucket maximum.
func (f *Filter) Add(key string, weight uint32) {
	if weight == 0 {
		return
	}
	i := f.bucket(key)
	sum := uint32(f.buckets[i]) + weight
	if sum > math.MaxUint8 {
		sum = math.MaxUint8
	}
	f.buckets[i] = uint8(sum)
}

// Weight returns the weight stored for key. Zero means the key was never added.
func (f *Filter) Weight(key string) uint32 {
	return uint32(f.buckets[f.bucket(key)])
}

// Bytes returns a copy of the buckets suitable for the wire.
func (f *Filter) Bytes() []byte {
	out := make([]byte, len(f.buckets))
	copy(out, f.buckets)
	return out
}

// Load returns the share of non-empty buckets.
func (f *Filter) Load() float64 {
	used := 0
	for _, b := range f.buckets {
		if b > 0 {
			used++
		}
	}
	return float64(used) / float64(len(f.buckets))
}

func (f *Filter) String() string {
	return fmt.Sprintf("filter(size=%d, load=%.3f)", f.Size(), f.Load())
}

func (f *Filter) bucket(key string) uint64 {
	return xxhash.Sum64String(key) % uint64(len(f.buckets))
}
