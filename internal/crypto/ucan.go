package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UCANPermission is the capability a UCAN grants over a space.
type UCANPermission string

const (
	PermissionAdmin UCANPermission = "/space/admin"
	PermissionWrite UCANPermission = "/space/write"
	PermissionRead  UCANPermission = "/space/read"
)

const ucanNonceSize = 16

// ErrMalformedUCAN reports a token that cannot be parsed.
var ErrMalformedUCAN = errors.New("malformed UCAN")

// UCANClaims are the fields of a parsed UCAN payload. Issuer and Audience
// are normalized to a single DID; arrays contribute their first element.
type UCANClaims struct {
	Issuer   string
	Audience string
	Command  string
	Resource string
	Nonce    string
	Expiry   int64
	Proofs   []string
}

// IssueRootUCAN issues a UCAN with an empty proof chain.
func IssueRootUCAN(key *ecdsa.PrivateKey, issuerDID, audienceDID, spaceID string, perm UCANPermission, expiresIn time.Duration, now time.Time) (string, error) {
	exp := now.Unix() + int64(expiresIn/time.Second)
	return issueUCAN(key, issuerDID, audienceDID, spaceID, perm, exp, []any{})
}

// DelegateUCAN issues a UCAN whose proof chain is the parent token. The
// expiry never exceeds the parent's; a parent without a readable exp leaves
// the requested expiry unchanged.
func DelegateUCAN(key *ecdsa.PrivateKey, issuerDID, audienceDID, spaceID string, perm UCANPermission, expiresIn time.Duration, proof string, now time.Time) (string, error) {
	exp := now.Unix() + int64(expiresIn/time.Second)
	if parentExp, ok := peekExpiry(proof); ok && parentExp < exp {
		exp = parentExp
	}
	return issueUCAN(key, issuerDID, audienceDID, spaceID, perm, exp, []any{proof})
}

func issueUCAN(key *ecdsa.PrivateKey, issuerDID, audienceDID, spaceID string, perm UCANPermission, exp int64, proofs []any) (string, error) {
	nonce := make([]byte, ucanNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRandom, err)
	}

	payload := map[string]any{
		"iss":   issuerDID,
		"aud":   []any{audienceDID},
		"cmd":   string(perm),
		"with":  "space:" + spaceID,
		"nonce": Base64URLEncode(nonce),
		"exp":   exp,
		"prf":   proofs,
	}
	return signES256JWT(key, payload)
}

func signES256JWT(key *ecdsa.PrivateKey, payload map[string]any) (string, error) {
	header, err := CanonicalJSON(map[string]any{"alg": "ES256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	body, err := CanonicalJSON(payload)
	if err != nil {
		return "", err
	}

	signingInput := Base64URLEncode([]byte(header)) + "." + Base64URLEncode([]byte(body))
	sig, err := Sign(key, []byte(signingInput))
	if err != nil {
		return "", err
	}
	return signingInput + "." + Base64URLEncode(sig), nil
}

// peekExpiry reads exp from an unverified token.
func peekExpiry(token string) (int64, bool) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return 0, false
	}
	raw, err := Base64URLDecode(parts[1])
	if err != nil {
		return 0, false
	}
	tree, err := DecodeJSON(raw)
	if err != nil {
		return 0, false
	}
	obj, ok := tree.(map[string]any)
	if !ok {
		return 0, false
	}
	n, ok := obj["exp"].(json.Number)
	if !ok {
		return 0, false
	}
	exp, err := strconv.ParseUint(string(n), 10, 63)
	if err != nil {
		return 0, false
	}
	return int64(exp), true
}

// ParseUCAN decodes a UCAN without verifying its signature.
func ParseUCAN(token string) (*UCANClaims, error) {
	parser := jwt.NewParser(jwt.WithJSONNumber())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedUCAN, err)
	}

	parsed := &UCANClaims{
		Issuer:   firstDID(claims["iss"]),
		Audience: firstDID(claims["aud"]),
	}
	parsed.Command, _ = claims["cmd"].(string)
	parsed.Resource, _ = claims["with"].(string)
	parsed.Nonce, _ = claims["nonce"].(string)
	if n, ok := claims["exp"].(json.Number); ok {
		parsed.Expiry, _ = n.Int64()
	}
	if prf, ok := claims["prf"].([]any); ok {
		for _, p := range prf {
			if s, ok := p.(string); ok {
				parsed.Proofs = append(parsed.Proofs, s)
			}
		}
	}
	return parsed, nil
}

// VerifyUCANSignature checks the ES256 signature of token against jwk.
func VerifyUCANSignature(token string, jwk JWK) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	sig, err := Base64URLDecode(parts[2])
	if err != nil {
		return false
	}
	return Verify(jwk, []byte(parts[0]+"."+parts[1]), sig)
}

// firstDID normalizes a DID claim that may be a string or an array.
func firstDID(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []any:
		if len(x) > 0 {
			if s, ok := x[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
