package export

import (
	"fmt"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/chain"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/clocklog"
)

// ErrNotAPeer is returned when the requesting endpoint is not a member of
// the requested wallet's current replica set.
type ErrNotAPeer struct {
	Wallet          string
	RequesterEndpoint string
}

func (e *ErrNotAPeer) Error() string {
	return fmt.Sprintf("export: %s is not a recognized peer for wallet %s", e.RequesterEndpoint, e.Wallet)
}

// Exporter builds Export Payloads from the Clock Log Store, gated by a
// replica-set membership check against the chain client.
type Exporter struct {
	store      *clocklog.Store
	chainClient chain.IChainClient
	selfEndpoint string
}

// New creates an Exporter. selfEndpoint is this node's own advertised
// endpoint, used to recognize self-requests (e.g. in dev mode) as trusted.
func New(store *clocklog.Store, chainClient chain.IChainClient, selfEndpoint string) *Exporter {
	return &Exporter{store: store, chainClient: chainClient, selfEndpoint: selfEndpoint}
}

// BuildExport assembles the Export Payload for wallets starting at
// clockMin. requesterEndpoint is empty to skip the peer check (only the
// package's tests do this; the HTTP handler always supplies it).
func (e *Exporter) BuildExport(wallets []string, clockMin int64, requesterEndpoint string) (Payload, error) {
	payload := Payload{
		CNodeUsers: make(map[string]CNodeUser, len(wallets)),
		IPFSIDObj:  IPFSIDObj{Addresses: []string{e.selfEndpoint}},
	}

	for _, wallet := range wallets {
		if requesterEndpoint != "" && requesterEndpoint != e.selfEndpoint {
			if err := e.checkPeer(wallet, requesterEndpoint); err != nil {
				return Payload{}, err
			}
		}

		user, rows, entities, err := e.store.Slice(wallet, clockMin)
		if err != nil {
			return Payload{}, fmt.Errorf("export: slice %s: %w", wallet, err)
		}

		cnodeUser := CNodeUser{
			UserUUID:          user.UserUUID,
			WalletPublicKey:   wallet,
			Clock:             user.Clock,
			LatestBlockNumber: user.LatestBlockNumber,
			Files:             entities.Files,
			Tracks:            entities.Tracks,
			AudiusUsers:       entities.AudiusUsers,
		}

		// Tie-break: clockMin beyond the primary's clock means "already up
		// to date" — the payload carries the user record with no records.
		if clockMin <= user.Clock {
			cnodeUser.ClockRecords = make([]ClockRecord, 0, len(rows))
			for _, row := range rows {
				cnodeUser.ClockRecords = append(cnodeUser.ClockRecords, ClockRecord{
					Clock:       row.Clock,
					SourceTable: row.SourceTable,
					SourceRowID: row.SourceRowID,
					CreatedAt:   row.CreatedAt,
				})
			}
		}

		payload.CNodeUsers[wallet] = cnodeUser
	}

	return payload, nil
}

func (e *Exporter) checkPeer(wallet, requesterEndpoint string) error {
	rs, err := e.chainClient.GetReplicaSet(wallet)
	if err != nil {
		return fmt.Errorf("export: lookup replica set for %s: %w", wallet, err)
	}

	requesterSPID, err := e.chainClient.ResolveSPID(requesterEndpoint)
	if err != nil {
		return fmt.Errorf("export: resolve requester sp_id: %w", err)
	}
	if requesterSPID == 0 {
		return &ErrNotAPeer{Wallet: wallet, RequesterEndpoint: requesterEndpoint}
	}

	if requesterSPID == rs.PrimaryID || requesterSPID == rs.Secondary1ID || requesterSPID == rs.Secondary2ID {
		return nil
	}
	return &ErrNotAPeer{Wallet: wallet, RequesterEndpoint: requesterEndpoint}
}
