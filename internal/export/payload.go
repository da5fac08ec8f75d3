package export

import "github.com/GNARcollectiveDAO/audius-protocol/internal/clocklog"

// ClockRecord is the wire shape of a clocklog.ClockLogRow.
type ClockRecord struct {
	Clock       int64  `json:"clock"`
	SourceTable string `json:"sourceTable"`
	SourceRowID string `json:"sourceRowId"`
	CreatedAt   int64  `json:"createdAt"`
}

// CNodeUser is the per-wallet payload: the user record plus everything
// committed for it in the requested clock window.
type CNodeUser struct {
	UserUUID          string               `json:"-"`
	WalletPublicKey   string               `json:"walletPublicKey"`
	Clock             int64                `json:"clock"`
	LatestBlockNumber int64                `json:"latestBlockNumber"`
	ClockRecords      []ClockRecord        `json:"clockRecords"`
	Files             []clocklog.File      `json:"files"`
	Tracks            []clocklog.Track     `json:"tracks"`
	AudiusUsers       []clocklog.AudiusUser `json:"audiusUsers"`
}

// IPFSIDObj mirrors the original system's peer-addressing envelope; this
// node advertises only its own HTTP endpoint in Addresses.
type IPFSIDObj struct {
	Addresses []string `json:"addresses"`
}

// Payload is the full /export response body.
type Payload struct {
	CNodeUsers map[string]CNodeUser `json:"cnodeUsers"`
	IPFSIDObj  IPFSIDObj            `json:"ipfsIdObj"`
}
