// Package httpapi binds the node-to-node wire protocol (export, clock
// probe, sync trigger, async status) to the components underneath it. It
// is deliberately narrow: no end-user content routes live here, only the
// control surface creator nodes use to talk to each other.
package httpapi
