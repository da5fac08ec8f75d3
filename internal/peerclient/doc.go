// Package peerclient is the outbound half of the node-to-node wire
// protocol: fetching export payloads from a source peer (used by the Sync
// Executor) and probing a secondary's current clock (used by Snapback).
// The export fetch signs an HS256 bearer token so the receiving node's
// peer-auth middleware can verify the request originated from a replica-set
// member; the clock probe is an unsigned GET.
package peerclient
