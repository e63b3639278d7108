package crypto

// Channel keys protect ephemeral presence and event traffic for a space.
const (
	channelSalt       = "less:channel-salt:v1"
	channelInfoPrefix = "less:channel:v1:"
	presenceAADPrefix = "less:presence:v1\x00"
	eventAADPrefix    = "less:event:v1\x00"
)

// DeriveChannelKey derives the channel key of a space from its epoch key.
func DeriveChannelKey(epochKey []byte, spaceID string) ([]byte, error) {
	if err := ValidateKeySize(epochKey); err != nil {
		return nil, err
	}
	return HKDF(epochKey, []byte(channelSalt), []byte(channelInfoPrefix+spaceID))
}

// PresenceAAD returns "less:presence:v1\0{spaceID}".
func PresenceAAD(spaceID string) []byte {
	return []byte(presenceAADPrefix + spaceID)
}

// EventAAD returns "less:event:v1\0{spaceID}".
func EventAAD(spaceID string) []byte {
	return []byte(eventAADPrefix + spaceID)
}

// EncryptPresence seals a presence update for a space.
func EncryptPresence(data, channelKey []byte, spaceID string) ([]byte, error) {
	return Seal(data, channelKey, PresenceAAD(spaceID))
}

// DecryptPresence opens a presence update sealed by EncryptPresence.
func DecryptPresence(ciphertext, channelKey []byte, spaceID string) ([]byte, error) {
	return Open(ciphertext, channelKey, PresenceAAD(spaceID))
}

// EncryptEvent seals a broadcast event for a space.
func EncryptEvent(data, channelKey []byte, spaceID string) ([]byte, error) {
	return Seal(data, channelKey, EventAAD(spaceID))
}

// DecryptEvent opens an event sealed by EncryptEvent.
func DecryptEvent(ciphertext, channelKey []byte, spaceID string) ([]byte, error) {
	return Open(ciphertext, channelKey, EventAAD(spaceID))
}
