// Package envelope encodes record envelopes and hides their size behind
// fixed padding buckets.
package envelope

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/TheMichaelB/spacesync/internal/models"
)

var (
	ErrEncode = errors.New("CBOR encode error")
	ErrDecode = errors.New("CBOR decode error")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	// Fields stay in declaration order (c, v, crdt, h); everything else
	// follows core deterministic encoding.
	encOpts := cbor.CoreDetEncOptions()
	encOpts.Sort = cbor.SortNone
	encOpts.NilContainers = cbor.NilContainerAsEmpty

	var err error
	if encMode, err = encOpts.EncMode(); err != nil {
		panic(fmt.Sprintf("envelope: cbor encoder: %v", err))
	}

	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("envelope: cbor decoder: %v", err))
	}
}

// wireEnvelope detects missing required fields on decode.
type wireEnvelope struct {
	Collection *string `cbor:"c"`
	Version    *uint64 `cbor:"v"`
	CRDT       *[]byte `cbor:"crdt"`
	EditChain  *string `cbor:"h,omitempty"`
}

// Encode serializes env. Identical envelopes always produce identical
// bytes.
func Encode(env *models.BlobEnvelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrEncode)
	}
	data, err := encMode.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return data, nil
}

// Decode parses an envelope produced by Encode.
func Decode(data []byte) (*models.BlobEnvelope, error) {
	var wire wireEnvelope
	if err := decMode.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	switch {
	case wire.Collection == nil:
		return nil, fmt.Errorf("%w: missing field `c`", ErrDecode)
	case wire.Version == nil:
		return nil, fmt.Errorf("%w: missing field `v`", ErrDecode)
	case wire.CRDT == nil:
		return nil, fmt.Errorf("%w: missing field `crdt`", ErrDecode)
	}

	crdt := *wire.CRDT
	if crdt == nil {
		crdt = []byte{}
	}

	return &models.BlobEnvelope{
		Collection: *wire.Collection,
		Version:    *wire.Version,
		CRDT:       crdt,
		EditChain:  wire.EditChain,
	}, nil
}
