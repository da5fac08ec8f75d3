// Package export implements the Peer Exporter: assembling a contiguous
// slice of a user's clock log plus referenced content descriptors into the
// Export Payload served at /export.
package export
