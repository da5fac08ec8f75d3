package syncexec

// Job is a Sync Job: a request to pull one or more wallets' state from a
// named source peer.
type Job struct {
	JobID              string
	Wallets            []string
	SourcePeerEndpoint string
	BlockNumber        *int64
	ForceResync        bool
}

// Outcome is the per-wallet result of executing a Job.
type Outcome struct {
	Wallet  string
	Success bool
	Err     error
}
