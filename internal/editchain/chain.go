// Package editchain signs, links and verifies the per-record history of
// field edits, and replays it into document state.
package editchain

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/TheMichaelB/spacesync/internal/crypto"
	"github.com/TheMichaelB/spacesync/internal/models"
)

const messagePrefix = "less:editlog:v1"

// ErrTimestampOverflow is returned when prev already carries the largest
// timestamp, so no later entry can follow it.
var ErrTimestampOverflow = errors.New("edit chain timestamp overflow")

// SigningMessage builds the bytes an entry signature covers:
//
//	less:editlog:v1 \0 collection \0 recordID \0 author \0 t \0 prev \0 canonical(diffs)
//
// prev is empty for the first entry.
func SigningMessage(collection, recordID, author string, t uint64, prev *string, diffs []models.EditDiff) ([]byte, error) {
	normalized := make([]any, len(diffs))
	for i, d := range diffs {
		m := map[string]any{
			"path": d.Path,
			"from": d.From,
			"to":   d.To,
		}
		if d.Del {
			m["del"] = true
		}
		normalized[i] = m
	}

	diffsJSON, err := crypto.CanonicalJSON(normalized)
	if err != nil {
		return nil, err
	}

	prevHash := ""
	if prev != nil {
		prevHash = *prev
	}

	var sb strings.Builder
	for i, part := range []string{
		messagePrefix, collection, recordID, author,
		strconv.FormatUint(t, 10), prevHash, diffsJSON,
	} {
		if i > 0 {
			sb.WriteByte(0)
		}
		sb.WriteString(part)
	}
	return []byte(sb.String()), nil
}

// LinkHash returns the hex SHA-256 of an entry signature, the value the
// following entry carries as its PrevHash.
func LinkHash(signature []byte) string {
	sum := sha256.Sum256(signature)
	return hex.EncodeToString(sum[:])
}

// SignEntry signs diffs as the next entry after prev (nil for the first).
// The timestamp is raised to prev.Timestamp+1 when it would not advance.
// A prev at the maximum timestamp fails with ErrTimestampOverflow.
func SignEntry(key *ecdsa.PrivateKey, pub crypto.JWK, collection, recordID, author string, t uint64, diffs []models.EditDiff, prev *models.EditEntry) (*models.EditEntry, error) {
	var prevHash *string
	if prev != nil {
		h := LinkHash(prev.Signature)
		prevHash = &h
		if prev.Timestamp == math.MaxUint64 {
			return nil, ErrTimestampOverflow
		}
		if t <= prev.Timestamp {
			t = prev.Timestamp + 1
		}
	}

	msg, err := SigningMessage(collection, recordID, author, t, prevHash, diffs)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(key, msg)
	if err != nil {
		return nil, err
	}

	return &models.EditEntry{
		Author:    author,
		Timestamp: t,
		Diffs:     diffs,
		PrevHash:  prevHash,
		Signature: sig,
		Key:       pub.Public(),
	}, nil
}

// VerifyEntry reports whether entry was signed for collection/recordID by
// the key it carries, and that key belongs to its author DID.
func VerifyEntry(entry *models.EditEntry, collection, recordID string) bool {
	if entry == nil {
		return false
	}

	did, err := crypto.EncodeDIDKeyFromJWK(entry.Key)
	if err != nil || did != entry.Author {
		return false
	}

	msg, err := SigningMessage(collection, recordID, entry.Author, entry.Timestamp, entry.PrevHash, entry.Diffs)
	if err != nil {
		return false
	}
	return crypto.Verify(entry.Key, msg, entry.Signature)
}

// VerifyChain checks every signature and every hash link. An empty chain
// is valid.
func VerifyChain(entries []*models.EditEntry, collection, recordID string) bool {
	if len(entries) == 0 {
		return true
	}
	if entries[0] == nil || !entries[0].IsFirst() {
		return false
	}

	for i, entry := range entries {
		if !VerifyEntry(entry, collection, recordID) {
			return false
		}
		if i > 0 {
			if entry.PrevHash == nil || *entry.PrevHash != LinkHash(entries[i-1].Signature) {
				return false
			}
		}
	}
	return true
}
