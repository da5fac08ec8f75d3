package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/snapback"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/syncexec"
)

// exportResponse mirrors §6's wire shape: {"data": {...}}.
type exportResponse struct {
	Data interface{} `json:"data"`
}

func (h *handler) exportWallets(c *gin.Context) []string {
	return c.QueryArray("wallet_public_key")
}

func (h *handler) handleExport(c *gin.Context) {
	if h.deps.Gate != nil {
		if err := h.deps.Gate.RequireReady(); err != nil {
			writeError(c, err)
			return
		}
	}

	wallets := c.QueryArray("wallet_public_key")
	if len(wallets) == 0 {
		writeError(c, &badRequest{msg: "wallet_public_key is required"})
		return
	}

	clockMin, err := parseClockMin(c.Query("clock_range_min"))
	if err != nil {
		writeError(c, &badRequest{msg: "clock_range_min must be an integer"})
		return
	}

	requesterEndpoint, _ := c.Get(peerEndpointContextKey)
	endpoint, _ := requesterEndpoint.(string)

	payload, err := h.deps.Exporter.BuildExport(wallets, clockMin, endpoint)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, exportResponse{Data: payload})
}

// handleClockStatus returns the local user's current clock, or -1 if
// unknown. Unauthenticated: it leaks no mutation capability.
func (h *handler) handleClockStatus(c *gin.Context) {
	wallet := c.Param("wallet")
	user, _, _, err := h.deps.Store.Slice(wallet, 0)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clock": user.Clock})
}

type syncRequest struct {
	Wallet              []string `json:"wallet"`
	CreatorNodeEndpoint string   `json:"creator_node_endpoint"`
	BlockNumber         *int64   `json:"block_number,omitempty"`
	ForceResync         bool     `json:"force_resync,omitempty"`
}

// syncWallets runs inside peerAuth, ahead of handleSync; ShouldBindBodyWith
// caches the decoded body on the context so handleSync's own bind doesn't
// hit an already-drained request stream.
func (h *handler) syncWallets(c *gin.Context) []string {
	var req syncRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		return nil
	}
	return req.Wallet
}

// handleSync enqueues a Sync Job and returns its ID immediately; the job
// runs asynchronously through the Async Job Queue.
func (h *handler) handleSync(c *gin.Context) {
	if h.deps.Gate != nil {
		if err := h.deps.Gate.RequireReady(); err != nil {
			writeError(c, err)
			return
		}
	}

	var req syncRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil || len(req.Wallet) == 0 || req.CreatorNodeEndpoint == "" {
		writeError(c, &badRequest{msg: "wallet[] and creator_node_endpoint are required"})
		return
	}

	jobID, err := h.deps.Jobs.Enqueue(snapback.SyncTask, syncexec.Job{
		Wallets:            req.Wallet,
		SourcePeerEndpoint: req.CreatorNodeEndpoint,
		BlockNumber:        req.BlockNumber,
		ForceResync:        req.ForceResync,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": jobID})
}

// handleAsyncStatus reports the status of a previously enqueued sync job.
// The async job queue's task space also serves file-processing work in the
// original system, but this module wires only the sync task, so uuid is
// looked up under snapback.SyncTask.
func (h *handler) handleAsyncStatus(c *gin.Context) {
	requestID := c.Query("uuid")
	if requestID == "" {
		writeError(c, &badRequest{msg: "uuid is required"})
		return
	}

	rec, found, err := h.deps.Tracker.Status(snapback.SyncTask, requestID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, envelope("not_found", "no record for uuid "+requestID))
		return
	}
	c.JSON(http.StatusOK, rec)
}

func parseClockMin(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// badRequest is a minimal error type for request-shape validation failures
// that never reach the lower layers, so they carry no nodeerr.Kind.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }
