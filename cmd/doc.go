// Package cmd implements the command-line interface for the creator node
// process.
//
// The package is organized into:
//
//   - serve: starts the node — HTTP API, Snapback, the Skipped-CID retry
//     loop, the async job queue workers — and blocks until shutdown.
//   - util: shared flag/help-text helpers (internal use).
//
// See creatornode --help for the full command list.
package cmd
