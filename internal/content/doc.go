// Package content implements the node's content-addressed storage
// convention (<storage_path>/<multihash[0:2]>/<multihash>) and the
// fetch-by-multihash client used by the Sync Executor and the skipped-CID
// retry loop to pull bytes from one of a user's replica-set peers.
//
// The actual P2P transport is out of scope (spec §1); peers are fetched
// from by plain HTTP GET, trying each candidate endpoint in order with a
// short per-attempt timeout, modeled on the teacher's round-robin-with-retry
// RPC client transport.
package content
