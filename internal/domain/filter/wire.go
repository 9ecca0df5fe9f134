package filter

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ErrCorrupt signals a filter payload that cannot be decompressed.
var ErrCorrupt = errors.New("filter: corrupt payload")

// Mostly empty bucket arrays compress well, so filters travel zstd-compressed.
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(64<<20))
)

// Compress returns the zstd-compressed buckets.
func (f *Filter) Compress() []byte {
	return encoder.EncodeAll(f.buckets, make([]byte, 0, len(f.buckets)/8))
}

// Decompress restores a filter from Compress output and checks it has the announced size.
func Decompress(data []byte, size int) (*Filter, error) {
	buckets, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if len(buckets) != size {
		return nil, fmt.Errorf("%w: got %d buckets, announced %d", ErrCorrupt, len(buckets), size)
	}
	return FromBytes(buckets)
}
