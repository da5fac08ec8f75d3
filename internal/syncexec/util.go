package syncexec

import "github.com/google/uuid"

// newUserUUID generates a fresh node-local user identifier, used when a
// sync imports a wallet this node has never seen (including re-imports
// after force_resync, where scenario 5 of the testable properties permits
// the uuid to differ from the prior one).
func newUserUUID(wallet string) string {
	return uuid.NewString()
}
