package lockmgr

import "crypto/rand"

const ownerIDBytes = 32

// generateOwnerID creates a new random owner ID identifying a lock holder.
func generateOwnerID() ([]byte, error) {
	buf := make([]byte, ownerIDBytes)
	_, err := rand.Read(buf)
	return buf, err
}
