package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/chain"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/clocklog"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/export"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/identity"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/jobqueue"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/jobstatus"
)

var (
	errMissingStore       = errors.New("httpapi: clock log store dependency required")
	errMissingExporter    = errors.New("httpapi: exporter dependency required")
	errMissingChainClient = errors.New("httpapi: chain client dependency required")
	errMissingJobQueue    = errors.New("httpapi: job queue dependency required")
	errMissingJobTracker  = errors.New("httpapi: job status tracker dependency required")
	errMissingSigningKey  = errors.New("httpapi: peer signing key dependency required")
)

// Dependencies are everything the router needs, assembled once at boot and
// injected here rather than constructed inline, mirroring the teacher
// pack's router-dependency-struct idiom.
type Dependencies struct {
	Store       *clocklog.Store
	Exporter    *export.Exporter
	ChainClient chain.IChainClient
	Jobs        jobqueue.IJobQueue
	Tracker     *jobstatus.Tracker
	SigningKey  []byte
	Logger      *zap.Logger

	// Gate reports whether Identity Bootstrap has completed. Nil means the
	// node always treats itself as ready, which is what every test below
	// that doesn't exercise bootstrap rejection wants.
	Gate *identity.Gate

	// PeerWhitelist and PeerBlacklist override peerAuth's replica-set
	// membership check for specific peer endpoints. Both default to empty.
	PeerWhitelist []string
	PeerBlacklist []string
}

// NewRouter builds the node-to-node HTTP surface: exactly the four
// endpoints of the sync wire protocol, nothing else.
func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Store == nil {
		return nil, errMissingStore
	}
	if deps.Exporter == nil {
		return nil, errMissingExporter
	}
	if deps.ChainClient == nil {
		return nil, errMissingChainClient
	}
	if deps.Jobs == nil {
		return nil, errMissingJobQueue
	}
	if deps.Tracker == nil {
		return nil, errMissingJobTracker
	}
	if len(deps.SigningKey) == 0 {
		return nil, errMissingSigningKey
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &handler{deps: deps, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(accessLog(logger))
	// The two unauthenticated read routes are polled by operator dashboards
	// running in a browser; the signed routes still reject any caller
	// without a valid peer token via peerAuth, whatever CORS allows through.
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
		MaxAge:          12 * time.Hour,
	}))

	acl := PeerACL{Whitelist: deps.PeerWhitelist, Blacklist: deps.PeerBlacklist}
	router.GET("/export", peerAuth(deps.SigningKey, deps.ChainClient, acl, h.exportWallets), h.handleExport)
	router.GET("/users/clock_status/:wallet", h.handleClockStatus)
	router.POST("/sync", peerAuth(deps.SigningKey, deps.ChainClient, acl, h.syncWallets), h.handleSync)
	router.GET("/async_processing_status", h.handleAsyncStatus)

	return router, nil
}

type handler struct {
	deps   Dependencies
	logger *zap.Logger
}
