package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

const (
	didKeyPrefix = "did:key:z"

	// p256Multicodec is the multicodec code for a compressed P-256 public
	// key (varint encoded as 0x80 0x24).
	p256Multicodec = 0x1200

	compressedPointSize = 1 + coordinateSize
)

// CompressP256PublicKey returns the 33-byte SEC1 compressed form of the
// key in jwk. The point itself is not validated.
func CompressP256PublicKey(jwk JWK) ([]byte, error) {
	if jwk.X == "" || jwk.Y == "" {
		return nil, invalidJWK("missing x or y coordinate")
	}
	x, err := Base64URLDecode(jwk.X)
	if err != nil {
		return nil, invalidJWK("x: " + err.Error())
	}
	y, err := Base64URLDecode(jwk.Y)
	if err != nil {
		return nil, invalidJWK("y: " + err.Error())
	}
	if len(x) == 0 || len(y) == 0 || len(x) > coordinateSize || len(y) > coordinateSize {
		return nil, invalidJWK("coordinate out of range")
	}

	out := make([]byte, compressedPointSize)
	out[0] = 0x02 | (y[len(y)-1] & 1)
	copy(out[1+coordinateSize-len(x):], x)
	return out, nil
}

// EncodeDIDKeyFromJWK derives the did:key identifier of a P-256 JWK.
func EncodeDIDKeyFromJWK(jwk JWK) (string, error) {
	compressed, err := CompressP256PublicKey(jwk)
	if err != nil {
		return "", err
	}

	payload := binary.AppendUvarint(make([]byte, 0, 2+len(compressed)), p256Multicodec)
	payload = append(payload, compressed...)
	return didKeyPrefix + base58.Encode(payload), nil
}

// EncodeDIDKey derives the did:key identifier of a public key.
func EncodeDIDKey(pub *ecdsa.PublicKey) (string, error) {
	return EncodeDIDKeyFromJWK(ExportPublicKeyJWK(pub))
}

// DecodeDIDKeyToJWK recovers the public JWK from a P-256 did:key.
func DecodeDIDKeyToJWK(did string) (JWK, error) {
	encoded, ok := strings.CutPrefix(did, didKeyPrefix)
	if !ok {
		return JWK{}, invalidJWK("expected did:key:z prefix")
	}

	payload, err := base58.Decode(encoded)
	if err != nil {
		return JWK{}, invalidJWK("base58 decode: " + err.Error())
	}
	if len(payload) < 2 {
		return JWK{}, invalidJWK("DID payload too short")
	}

	codec, n := binary.Uvarint(payload)
	if n <= 0 {
		return JWK{}, invalidJWK("malformed multicodec varint")
	}
	if codec != p256Multicodec {
		return JWK{}, invalidJWK(fmt.Sprintf("expected P-256 multicodec 0x1200, got 0x%04x", codec))
	}

	compressed := payload[n:]
	if len(compressed) != compressedPointSize {
		return JWK{}, invalidJWK(fmt.Sprintf("expected 33-byte compressed point, got %d", len(compressed)))
	}

	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), compressed)
	if x == nil {
		return JWK{}, invalidJWK("point not on P-256 curve")
	}
	return ExportPublicKeyJWK(&ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}), nil
}
