package crypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/golang-jwt/jwt/v5"
)

const (
	coordinateSize = 32
	// SignatureSize is an IEEE P1363 r || s signature.
	SignatureSize = 2 * coordinateSize
)

// JWK is an EC P-256 JSON Web Key. D is only set on private keys.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
	D   string `json:"d,omitempty"`
}

// Public returns the key without its private scalar.
func (k JWK) Public() JWK {
	k.D = ""
	return k
}

// GenerateKeyPair creates a new P-256 signing key.
func GenerateKeyPair() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate P-256 key: %w", err)
	}
	return key, nil
}

// Sign signs message with ECDSA P-256 / SHA-256 and returns the 64-byte
// r || s encoding.
func Sign(key *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	sig, err := jwt.SigningMethodES256.Sign(string(message), key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	return sig, nil
}

// Verify reports whether sig is a valid signature of message under the
// public key in jwk. Malformed keys and malformed signatures are reported
// as false, the same as a bad signature.
func Verify(jwk JWK, message, sig []byte) bool {
	pub, err := ImportPublicKeyJWK(jwk)
	if err != nil {
		return false
	}
	return jwt.SigningMethodES256.Verify(string(message), sig, pub) == nil
}

// ImportPublicKeyJWK parses and validates a P-256 public JWK. Short
// coordinates are left-padded to 32 bytes.
func ImportPublicKeyJWK(jwk JWK) (*ecdsa.PublicKey, error) {
	if err := checkKeyType(jwk); err != nil {
		return nil, err
	}
	if jwk.X == "" {
		return nil, invalidJWK("missing field x")
	}
	if jwk.Y == "" {
		return nil, invalidJWK("missing field y")
	}

	x, err := decodeCoordinate(jwk.X, "x")
	if err != nil {
		return nil, err
	}
	y, err := decodeCoordinate(jwk.Y, "y")
	if err != nil {
		return nil, err
	}

	point := make([]byte, 0, 1+2*coordinateSize)
	point = append(point, 0x04)
	point = append(point, x...)
	point = append(point, y...)
	if _, err := ecdh.P256().NewPublicKey(point); err != nil {
		return nil, invalidJWK("P-256 point: " + err.Error())
	}

	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}, nil
}

// ImportPrivateKeyJWK parses the private scalar of a P-256 JWK. The public
// half is recomputed from the scalar.
func ImportPrivateKeyJWK(jwk JWK) (*ecdsa.PrivateKey, error) {
	if err := checkKeyType(jwk); err != nil {
		return nil, err
	}
	if jwk.D == "" {
		return nil, invalidJWK("missing field d")
	}

	d, err := Base64URLDecode(jwk.D)
	if err != nil {
		return nil, invalidJWK("d: " + err.Error())
	}
	defer Zero(d)
	if len(d) != coordinateSize {
		return nil, invalidJWK(fmt.Sprintf("d: expected %d bytes, got %d", coordinateSize, len(d)))
	}

	priv, err := ecdh.P256().NewPrivateKey(d)
	if err != nil {
		return nil, invalidJWK("P-256 scalar: " + err.Error())
	}
	// Uncompressed encoding: 0x04 || x || y
	pub := priv.PublicKey().Bytes()

	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(pub[1 : 1+coordinateSize]),
			Y:     new(big.Int).SetBytes(pub[1+coordinateSize:]),
		},
		D: new(big.Int).SetBytes(d),
	}, nil
}

// ExportPublicKeyJWK encodes a public key as a JWK.
func ExportPublicKeyJWK(pub *ecdsa.PublicKey) JWK {
	x := pub.X.FillBytes(make([]byte, coordinateSize))
	y := pub.Y.FillBytes(make([]byte, coordinateSize))
	return JWK{
		Kty: "EC",
		Crv: "P-256",
		X:   Base64URLEncode(x),
		Y:   Base64URLEncode(y),
	}
}

// ExportPrivateKeyJWK encodes a private key, including d, as a JWK.
func ExportPrivateKeyJWK(key *ecdsa.PrivateKey) JWK {
	jwk := ExportPublicKeyJWK(&key.PublicKey)
	d := key.D.FillBytes(make([]byte, coordinateSize))
	jwk.D = Base64URLEncode(d)
	Zero(d)
	return jwk
}

func checkKeyType(jwk JWK) error {
	if jwk.Kty != "" && jwk.Kty != "EC" {
		return invalidJWK("unsupported kty " + jwk.Kty)
	}
	if jwk.Crv != "" && jwk.Crv != "P-256" {
		return invalidJWK("unsupported crv " + jwk.Crv)
	}
	return nil
}

func decodeCoordinate(s, name string) ([]byte, error) {
	raw, err := Base64URLDecode(s)
	if err != nil {
		return nil, invalidJWK(name + ": " + err.Error())
	}
	if len(raw) == 0 || len(raw) > coordinateSize {
		return nil, invalidJWK(fmt.Sprintf("%s: coordinate out of range (%d bytes)", name, len(raw)))
	}
	out := make([]byte, coordinateSize)
	copy(out[coordinateSize-len(raw):], raw)
	return out, nil
}
