package wifi

import (
	"crypto/sha1"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

// DerivePSK derives the 256-bit WPA2 pre-shared key from a passphrase and
// network name, returning it hex-encoded the way the control protocol
// expects raw keys.
func DerivePSK(essid, passphrase string) string {
	key := pbkdf2.Key([]byte(passphrase), []byte(essid), 4096, 32, sha1.New)
	return hex.EncodeToString(key)
}
