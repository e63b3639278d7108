package models

import (
	"encoding/json"
	"fmt"

	"github.com/TheMichaelB/spacesync/internal/crypto"
)

// JWK is a P-256 JSON Web Key.
type JWK = crypto.JWK

// MembershipEntryType is the action a membership log entry records.
type MembershipEntryType string

const (
	MembershipDelegation MembershipEntryType = "d" // admin invites a member
	MembershipAccepted   MembershipEntryType = "a" // member accepts
	MembershipDeclined   MembershipEntryType = "x" // member declines
	MembershipRevoked    MembershipEntryType = "r" // admin revokes
)

// ParseMembershipEntryType maps a wire code to its entry type.
func ParseMembershipEntryType(s string) (MembershipEntryType, error) {
	switch t := MembershipEntryType(s); t {
	case MembershipDelegation, MembershipAccepted, MembershipDeclined, MembershipRevoked:
		return t, nil
	}
	return "", &MembershipEntryError{Reason: fmt.Sprintf("invalid entry type: %s", s)}
}

// SignedByIssuer reports whether the entry is signed by the UCAN issuer
// rather than its audience.
func (t MembershipEntryType) SignedByIssuer() bool {
	return t == MembershipDelegation || t == MembershipRevoked
}

func (t MembershipEntryType) String() string {
	switch t {
	case MembershipDelegation:
		return "delegation"
	case MembershipAccepted:
		return "accepted"
	case MembershipDeclined:
		return "declined"
	case MembershipRevoked:
		return "revoked"
	}
	return string(t)
}

// MembershipEntry is the payload stored in a space's membership log.
type MembershipEntry struct {
	UCAN            string
	Type            MembershipEntryType
	Signature       []byte
	SignerPublicKey JWK

	// Optional fields.
	Epoch           *uint32
	MailboxID       *string
	PublicKeyJWK    json.RawMessage // recipient key, delegations only
	SignerHandle    *string
	RecipientHandle *string
}
