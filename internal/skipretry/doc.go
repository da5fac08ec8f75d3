// Package skipretry implements the Skipped-CID Retry Loop: a background
// scanner over File rows flagged skipped during a sync that periodically
// re-resolves the owning user's current replica-set peers and re-attempts
// the fetch.
package skipretry
