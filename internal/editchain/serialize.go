package editchain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TheMichaelB/spacesync/internal/crypto"
	"github.com/TheMichaelB/spacesync/internal/models"
)

// ErrSerialization is returned for chains that cannot be serialized or parsed.
var ErrSerialization = errors.New("edit chain serialization error")

// wireEntry is the stored form of an entry. The signature is base64url and
// p is written as null on the first entry.
type wireEntry struct {
	A *string            `json:"a"`
	T *uint64            `json:"t"`
	D *[]models.EditDiff `json:"d"`
	P *string            `json:"p"`
	S *string            `json:"s"`
	K *crypto.JWK        `json:"k"`
}

// Serialize encodes a chain as the JSON string kept in BlobEnvelope.EditChain.
func Serialize(entries []*models.EditEntry) (string, error) {
	wire := make([]wireEntry, len(entries))
	for i, e := range entries {
		if e == nil {
			return "", fmt.Errorf("%w: entry %d is nil", ErrSerialization, i)
		}
		diffs := e.Diffs
		if diffs == nil {
			diffs = []models.EditDiff{}
		}
		sig := crypto.Base64URLEncode(e.Signature)
		key := e.Key
		wire[i] = wireEntry{
			A: &e.Author,
			T: &e.Timestamp,
			D: &diffs,
			P: e.PrevHash,
			S: &sig,
			K: &key,
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(wire); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// Parse decodes a chain produced by Serialize. Diff values keep numbers as
// json.Number.
func Parse(serialized string) ([]*models.EditEntry, error) {
	trimmed := bytes.TrimLeft([]byte(serialized), " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrSerialization)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var wire []wireEntry
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after chain", ErrSerialization)
	}

	entries := make([]*models.EditEntry, 0, len(wire))
	for i, w := range wire {
		if err := w.check(); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrSerialization, i, err)
		}

		sig, err := crypto.Base64URLDecode(*w.S)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: signature: %v", ErrSerialization, i, err)
		}

		entries = append(entries, &models.EditEntry{
			Author:    *w.A,
			Timestamp: *w.T,
			Diffs:     *w.D,
			PrevHash:  w.P,
			Signature: sig,
			Key:       *w.K,
		})
	}
	return entries, nil
}

func (w *wireEntry) check() error {
	switch {
	case w.A == nil:
		return errors.New("missing field `a`")
	case w.T == nil:
		return errors.New("missing field `t`")
	case w.D == nil:
		return errors.New("missing field `d`")
	case w.S == nil:
		return errors.New("missing field `s`")
	case w.K == nil:
		return errors.New("missing field `k`")
	}
	return nil
}
