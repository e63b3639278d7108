package envelope

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// lengthPrefixSize is the u32 little-endian length in front of padded data.
const lengthPrefixSize = 4

// DefaultBuckets are the padded sizes used when none are configured.
var DefaultBuckets = []int{256, 1024, 4096, 16384, 65536, 262144, 1048576}

// ErrPadding is the category of every padding failure.
var ErrPadding = errors.New("padding error")

// DataTooLargeError is returned when no bucket can hold the data.
type DataTooLargeError struct {
	Size      int
	MaxBucket int
}

func (e *DataTooLargeError) Error() string {
	return fmt.Sprintf("data too large: %d bytes exceeds max bucket %d", e.Size, e.MaxBucket)
}

// Is reports ErrPadding as a match.
func (e *DataTooLargeError) Is(target error) bool {
	return target == ErrPadding
}

// PadToBucket prefixes data with its length and zero-fills it to the
// smallest bucket that fits. Buckets must be ascending. An empty bucket list
// returns a copy of data unchanged.
func PadToBucket(data []byte, buckets []int) ([]byte, error) {
	if len(buckets) == 0 {
		return append([]byte{}, data...), nil
	}

	needed := lengthPrefixSize + len(data)
	size := -1
	for _, b := range buckets {
		if b >= needed {
			size = b
			break
		}
	}
	if size < 0 || uint64(len(data)) > uint64(^uint32(0)) {
		return nil, &DataTooLargeError{Size: len(data), MaxBucket: buckets[len(buckets)-1]}
	}

	padded := make([]byte, size)
	binary.LittleEndian.PutUint32(padded, uint32(len(data)))
	copy(padded[lengthPrefixSize:], data)
	return padded, nil
}

// Unpad strips the length prefix and trailing zeros added by PadToBucket.
// The claimed length is never trusted beyond the bytes actually present.
func Unpad(data []byte, buckets []int) ([]byte, error) {
	if len(buckets) == 0 {
		return append([]byte{}, data...), nil
	}

	if len(data) < lengthPrefixSize {
		return nil, fmt.Errorf("%w: padded data too short: %d bytes", ErrPadding, len(data))
	}

	claimed := uint64(binary.LittleEndian.Uint32(data))
	available := uint64(len(data) - lengthPrefixSize)
	if claimed > available {
		return nil, fmt.Errorf("%w: invalid padding: claimed length %d exceeds available data %d",
			ErrPadding, claimed, available)
	}

	out := make([]byte, claimed)
	copy(out, data[lengthPrefixSize:])
	return out, nil
}
