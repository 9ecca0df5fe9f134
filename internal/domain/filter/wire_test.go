package filter

import (
	"bytes"
	"errors"
	"testing"
)

func TestCompress_RoundTrip(t *testing.T) {
	f := New(DefaultSize)
	f.Add("rust", 2)
	f.Add("lang=en", 1)

	data := f.Compress()
	if len(data) >= f.Size() {
		t.Errorf("compressed %d buckets into %d bytes", f.Size(), len(data))
	}

	got, err := Decompress(data, f.Size())
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got.Bytes(), f.Bytes()) {
		t.Error("buckets differ after round trip")
	}
}

func TestDecompress_Errors(t *testing.T) {
	f := New(64)
	f.Add("x", 1)

	tests := []struct {
		name string
		data []byte
		size int
	}{
		{"garbage", []byte("not zstd at all"), 64},
		{"size mismatch", f.Compress(), 128},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decompress(tc.data, tc.size); !errors.Is(err, ErrCorrupt) {
				t.Errorf("expected ErrCorrupt, got %v", err)
			}
		})
	}
}
