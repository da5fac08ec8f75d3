package lockmgr

import "time"

// ILockManager coordinates exclusive access to a keyed resource, typically
// a user's replica set, across every node process sharing a coordination
// store.
type ILockManager interface {
	// AcquireLock attempts to acquire the lock for key, which expires
	// automatically after ttl if never released. ok is true only if this
	// call won the lock; ownerID must be retained and passed to ReleaseLock.
	AcquireLock(key string, ttl time.Duration) (ok bool, ownerID []byte, err error)

	// ReleaseLock releases the lock for key if and only if ownerID matches
	// the current holder. Releasing a lock that does not exist, or that is
	// held by a different owner, is not an error — ok reports which
	// happened.
	ReleaseLock(key string, ownerID []byte) (ok bool, err error)
}
