package engine

import (
	"crypto/sha1"
	"encoding/hex"
)

// Identity is how the speaker presents itself to controllers.
type Identity struct {
	Name     string
	DeviceID string
}

// NewIdentity derives the device id from the display name, so the same
// name always yields the same id.
func NewIdentity(name string) Identity {
	sum := sha1.Sum([]byte(name))
	return Identity{Name: name, DeviceID: hex.EncodeToString(sum[:])}
}
