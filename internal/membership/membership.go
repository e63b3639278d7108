// Package membership signs, verifies and encrypts the entries of a space's
// membership log. Each entry carries a UCAN and a signature by the party
// the entry type names: the issuer for delegations and revocations, the
// audience for acceptances and declines.
package membership

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/TheMichaelB/spacesync/internal/crypto"
	"github.com/TheMichaelB/spacesync/internal/models"
)

const messagePrefix = "less:membership:v1"

// MaxHandleLength bounds signer and recipient handles in bytes. Longer
// handles are dropped on parse.
const MaxHandleLength = 320

// SigningMessage builds the bytes an entry signature covers:
//
//	less:membership:v1 \0 type \0 space \0 signerDID \0 ucan \0 signerHandle \0 recipientHandle
//
// Missing handles are passed as empty strings.
func SigningMessage(t models.MembershipEntryType, spaceID, signerDID, ucan, signerHandle, recipientHandle string) []byte {
	return []byte(strings.Join([]string{
		messagePrefix, string(t), spaceID, signerDID, ucan, signerHandle, recipientHandle,
	}, "\x00"))
}

// Parse decodes a decrypted membership payload.
func Parse(payload string) (*models.MembershipEntry, error) {
	trimmed := bytes.TrimSpace([]byte(payload))
	if !json.Valid(trimmed) {
		return nil, &models.MembershipEntryError{Reason: "invalid JSON"}
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &models.MembershipEntryError{Reason: "expected object"}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, &models.MembershipEntryError{Reason: "invalid JSON", Err: err}
	}

	ucan, ok := stringField(obj, "u")
	if !ok {
		return nil, &models.MembershipEntryError{Reason: "missing u field"}
	}
	typeCode, ok := stringField(obj, "t")
	if !ok {
		return nil, &models.MembershipEntryError{Reason: "missing t field"}
	}
	sigText, ok := stringField(obj, "s")
	if !ok {
		return nil, &models.MembershipEntryError{Reason: "missing s field"}
	}
	rawKey, ok := obj["p"]
	if !ok {
		return nil, &models.MembershipEntryError{Reason: "missing p field"}
	}

	entryType, err := models.ParseMembershipEntryType(typeCode)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Base64URLDecode(sigText)
	if err != nil {
		return nil, &models.MembershipEntryError{Reason: "signature encoding", Err: err}
	}
	var signerKey crypto.JWK
	if err := json.Unmarshal(rawKey, &signerKey); err != nil {
		return nil, &models.MembershipEntryError{Reason: "invalid p field", Err: err}
	}

	entry := &models.MembershipEntry{
		UCAN:            ucan,
		Type:            entryType,
		Signature:       sig,
		SignerPublicKey: signerKey,
	}

	if raw, ok := obj["e"]; ok {
		if v, err := strconv.ParseUint(string(raw), 10, 64); err == nil {
			epoch := uint32(v)
			entry.Epoch = &epoch
		}
	}
	if m, ok := stringField(obj, "m"); ok {
		entry.MailboxID = &m
	}
	if k, ok := obj["k"]; ok {
		entry.PublicKeyJWK = append(json.RawMessage(nil), k...)
	}
	entry.SignerHandle = handleField(obj, "n")
	entry.RecipientHandle = handleField(obj, "rn")
	return entry, nil
}

func stringField(obj map[string]json.RawMessage, name string) (string, bool) {
	raw, ok := obj[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func handleField(obj map[string]json.RawMessage, name string) *string {
	s, ok := stringField(obj, name)
	if !ok || len(s) > MaxHandleLength {
		return nil
	}
	return &s
}

// Serialize encodes entry as the JSON payload stored in the log. Keys are
// written in sorted order and optional fields only when set.
func Serialize(entry *models.MembershipEntry) (string, error) {
	if entry == nil {
		return "", &models.MembershipEntryError{Reason: "nil entry"}
	}

	key := map[string]any{
		"kty": entry.SignerPublicKey.Kty,
		"crv": entry.SignerPublicKey.Crv,
		"x":   entry.SignerPublicKey.X,
		"y":   entry.SignerPublicKey.Y,
	}
	obj := map[string]any{
		"u": entry.UCAN,
		"t": string(entry.Type),
		"s": crypto.Base64URLEncode(entry.Signature),
		"p": key,
	}
	if entry.Epoch != nil {
		obj["e"] = *entry.Epoch
	}
	if entry.MailboxID != nil {
		obj["m"] = *entry.MailboxID
	}
	if entry.PublicKeyJWK != nil {
		obj["k"] = entry.PublicKeyJWK
	}
	if entry.SignerHandle != nil {
		obj["n"] = *entry.SignerHandle
	}
	if entry.RecipientHandle != nil {
		obj["rn"] = *entry.RecipientHandle
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(obj); err != nil {
		return "", &models.MembershipEntryError{Reason: "serialize", Err: err}
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// Sign sets the signer key and signature of entry for spaceID. The UCAN,
// type and handles must already be filled in.
func Sign(key *ecdsa.PrivateKey, entry *models.MembershipEntry, spaceID string) error {
	if key == nil || entry == nil {
		return &models.MembershipEntryError{Reason: "nil key or entry"}
	}
	signerDID, err := crypto.EncodeDIDKey(&key.PublicKey)
	if err != nil {
		return err
	}

	msg := SigningMessage(entry.Type, spaceID, signerDID, entry.UCAN,
		deref(entry.SignerHandle), deref(entry.RecipientHandle))
	sig, err := crypto.Sign(key, msg)
	if err != nil {
		return err
	}

	entry.SignerPublicKey = crypto.ExportPublicKeyJWK(&key.PublicKey)
	entry.Signature = sig
	return nil
}

// Verify checks that entry was signed for spaceID by the party its type
// requires. A self-issued UCAN must also carry a valid signature by that
// key. Malformed UCANs and signer keys are errors; a signature or identity
// mismatch is reported as false.
func Verify(entry *models.MembershipEntry, spaceID string) (bool, error) {
	if entry == nil {
		return false, &models.MembershipEntryError{Reason: "nil entry"}
	}
	if strings.Count(entry.UCAN, ".") != 2 {
		return false, &models.MembershipEntryError{Reason: "invalid UCAN JWT format"}
	}
	claims, err := crypto.ParseUCAN(entry.UCAN)
	if err != nil {
		return false, &models.MembershipEntryError{Reason: "UCAN payload", Err: err}
	}

	expected := claims.Audience
	if entry.Type.SignedByIssuer() {
		expected = claims.Issuer
	}

	signerDID, err := crypto.EncodeDIDKeyFromJWK(entry.SignerPublicKey)
	if err != nil {
		return false, err
	}
	if signerDID != expected {
		return false, nil
	}

	msg := SigningMessage(entry.Type, spaceID, signerDID, entry.UCAN,
		deref(entry.SignerHandle), deref(entry.RecipientHandle))
	if !crypto.Verify(entry.SignerPublicKey, msg, entry.Signature) {
		return false, nil
	}

	if claims.Issuer == claims.Audience {
		parts := strings.Split(entry.UCAN, ".")
		sig, err := crypto.Base64URLDecode(parts[2])
		if err != nil {
			return false, &models.MembershipEntryError{Reason: "UCAN signature encoding", Err: err}
		}
		if !crypto.Verify(entry.SignerPublicKey, []byte(parts[0]+"."+parts[1]), sig) {
			return false, nil
		}
	}
	return true, nil
}

// EncryptPayload encrypts a serialized entry under the space's current
// epoch key. seq is the entry's position in the log and is bound into the
// ciphertext.
func EncryptPayload(payload string, key []byte, spaceID string, seq uint32) ([]byte, error) {
	return crypto.EncryptV4([]byte(payload), key, payloadContext(spaceID, seq))
}

// DecryptPayload reverses EncryptPayload.
func DecryptPayload(ciphertext, key []byte, spaceID string, seq uint32) (string, error) {
	plaintext, err := crypto.DecryptV4(ciphertext, key, payloadContext(spaceID, seq))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plaintext) {
		return "", &models.MembershipEntryError{Reason: "UTF-8 decode"}
	}
	return string(plaintext), nil
}

func payloadContext(spaceID string, seq uint32) *crypto.EncryptionContext {
	return &crypto.EncryptionContext{SpaceID: spaceID, RecordID: strconv.FormatUint(uint64(seq), 10)}
}

// EntryHash returns the SHA-256 of an encrypted entry, used to chain log
// entries together.
func EntryHash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
