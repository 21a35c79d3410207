package netcontrol

import (
	"math/rand/v2"
	"strings"
)

// MinimumSecretLength is the platform floor for access point secrets.
// WPA2 rejects passphrases shorter than 8 characters.
const MinimumSecretLength = 8

// secretAlphabet contains the characters used for generated secrets.
// There is no "O" (Oh) to reduce confusion.
const secretAlphabet = "abcdefghjkmnopqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ23456789.-,:$/"

// GenerateRandomSecret returns a random secret of max(length,
// MinimumSecretLength) characters drawn from a fixed alphabet without
// visually ambiguous glyphs.
//
// This is a usability password for the setup access point, not key
// material, so an unseeded non-cryptographic source is sufficient.
func GenerateRandomSecret(length int) string {
	if length < MinimumSecretLength {
		length = MinimumSecretLength
	}

	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(secretAlphabet[rand.IntN(len(secretAlphabet))])
	}
	return b.String()
}
