package identity

import (
	"context"
	"sync"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/chain"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/logging"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/nodeerr"
)

// Gate tracks whether Identity Bootstrap has completed. Every
// chain-dependent component (Snapback, the Sync Executor's peer-set
// lookups) checks it before proceeding.
type Gate struct {
	mu    sync.RWMutex
	ready bool
	spID  int64
	done  chan struct{}
}

// NewGate creates an unready Gate.
func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Run starts Bootstrap in a background goroutine and returns a Gate that
// becomes ready once it succeeds. If ctx is canceled before Bootstrap
// succeeds, the Gate never becomes ready.
func Run(ctx context.Context, chainClient chain.IChainClient, cfg Config, log *logging.ComponentLogger) *Gate {
	g := NewGate()
	go func() {
		spID, err := Bootstrap(ctx, chainClient, cfg, log)
		if err != nil {
			log.Errorf("identity bootstrap did not complete: %v", err)
			return
		}
		g.markReady(spID)
	}()
	return g
}

func (g *Gate) markReady(spID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ready {
		return
	}
	g.ready = true
	g.spID = spID
	close(g.done)
}

// Ready reports whether bootstrap has completed.
func (g *Gate) Ready() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ready
}

// SPID returns this node's resolved service-provider ID, or 0 if not yet
// ready.
func (g *Gate) SPID() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.spID
}

// Wait blocks until the gate is ready or ctx is canceled.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequireReady returns a BootstrapPending error if bootstrap has not yet
// completed, for components that must fail fast rather than block.
func (g *Gate) RequireReady() error {
	if !g.Ready() {
		return nodeerr.New(nodeerr.KindBootstrapPending, "identity bootstrap not yet complete", nil)
	}
	return nil
}
