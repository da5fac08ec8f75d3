package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/export"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/nodeerr"
)

// errorEnvelope is the single JSON shape every handler error funnels
// through: {"error": {"kind": "...", "message": "..."}}.
type errorEnvelope struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeError maps err to an HTTP status and writes the error envelope.
func writeError(c *gin.Context, err error) {
	var nerr *nodeerr.Error
	if errors.As(err, &nerr) {
		c.JSON(statusForKind(nerr.Kind()), envelope(nerr.Kind(), nerr.Error()))
		return
	}

	var notPeer *export.ErrNotAPeer
	if errors.As(err, &notPeer) {
		c.JSON(http.StatusForbidden, envelope("not_a_peer", notPeer.Error()))
		return
	}

	var bad *badRequest
	if errors.As(err, &bad) {
		c.JSON(http.StatusBadRequest, envelope("invalid_request", bad.Error()))
		return
	}

	c.JSON(http.StatusInternalServerError, envelope("internal_error", err.Error()))
}

func envelope(kind, message string) errorEnvelope {
	var e errorEnvelope
	e.Error.Kind = kind
	e.Error.Message = message
	return e
}

func statusForKind(kind string) int {
	switch kind {
	case string(nodeerr.KindExportInvalid), string(nodeerr.KindConstraintViolation):
		return http.StatusBadRequest
	case string(nodeerr.KindSyncInProgress), string(nodeerr.KindBootstrapPending):
		return http.StatusServiceUnavailable
	case string(nodeerr.KindExportRegression), string(nodeerr.KindExportNonContiguous):
		return http.StatusConflict
	case string(nodeerr.KindContentFetchFailed), string(nodeerr.KindCommitFailed), string(nodeerr.KindClockGap):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
