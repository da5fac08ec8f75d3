// Package lockmgr implements per-user exclusive locking on top of the
// coordination store. The sync executor uses it to guarantee that at most one sync job is ever in flight for a given
// user at a time, across every creator node process sharing the
// coordination store.
//
// Locks are acquired with SetNX against the coordination store, which
// guarantees only one caller can ever create the lock key; the stored value
// is a randomly generated owner ID that the holder must present again to
// release the lock. A TTL on the lock key bounds how long a crashed holder
// can block the resource.
package lockmgr
