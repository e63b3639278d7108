package models

// BlobEnvelope is the plaintext wrapper around a record before padding and
// encryption. Field order is part of the wire format.
type BlobEnvelope struct {
	Collection string `cbor:"c" json:"c"`
	Version    uint64 `cbor:"v" json:"v"`
	CRDT       []byte `cbor:"crdt" json:"crdt"`
	// EditChain is the serialized edit chain, if the record keeps one.
	EditChain *string `cbor:"h,omitempty" json:"h,omitempty"`
}

// EditDiff is a single field change. Del marks a removed key, as opposed to
// one set to null.
type EditDiff struct {
	Path string `json:"path"`
	From any    `json:"from"`
	To   any    `json:"to"`
	Del  bool   `json:"del,omitempty"`
}

// EditEntry is one signed link of a record's edit chain.
type EditEntry struct {
	Author    string // did:key of the signer
	Timestamp uint64 // Unix milliseconds
	Diffs     []EditDiff
	PrevHash  *string // hex SHA-256 of the previous entry's signature
	Signature []byte
	Key       JWK
}

// IsFirst reports whether the entry starts a chain.
func (e *EditEntry) IsFirst() bool {
	return e.PrevHash == nil
}
