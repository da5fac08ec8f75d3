package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/chain"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/identity"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/logging"
)

func TestBootstrapSucceedsOnceChainIsReady(t *testing.T) {
	const endpoint = "https://node.example"

	cc := chain.NewFakeClient(false)
	spID := cc.NextSPID()
	if err := cc.RegisterServiceProvider(spID, endpoint); err != nil {
		t.Fatalf("seed registration: %v", err)
	}

	log := logging.NewComponentLogger("identity-test", logging.LevelError)

	// The registry isn't deployed yet; flip it shortly after Bootstrap starts
	// polling, exercising the long-poll wait. The next check comes one
	// RegistryPollIntervalDev later, so the deadline must outlast it.
	go func() {
		time.Sleep(20 * time.Millisecond)
		cc.SetRegistryDeployed(true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), identity.RegistryPollIntervalDev+5*time.Second)
	defer cancel()

	got, err := identity.Bootstrap(ctx, cc, identity.Config{Endpoint: endpoint, DevMode: true}, log)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if got != spID {
		t.Fatalf("expected spID %d, got %d", spID, got)
	}

	registered, err := cc.ResolveSPID(endpoint)
	if err != nil || registered != spID {
		t.Fatalf("expected self-registration to stick, got %d err=%v", registered, err)
	}
}

func TestBootstrapCanceledBeforeSPIDResolved(t *testing.T) {
	cc := chain.NewFakeClient(true) // endpoint never registered, ResolveSPID always returns 0
	log := logging.NewComponentLogger("identity-test", logging.LevelError)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := identity.Bootstrap(ctx, cc, identity.Config{Endpoint: "https://unregistered.example"}, log); err == nil {
		t.Fatalf("expected Bootstrap to fail when canceled before SPID resolution")
	}
}

func TestGateRequireReady(t *testing.T) {
	g := identity.NewGate()
	if err := g.RequireReady(); err == nil {
		t.Fatalf("expected RequireReady to fail on an unready gate")
	}

	cc := chain.NewFakeClient(true)
	const endpoint = "https://node.example"
	spID := cc.NextSPID()
	cc.RegisterServiceProvider(spID, endpoint)

	log := logging.NewComponentLogger("identity-test", logging.LevelError)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	gate := identity.Run(ctx, cc, identity.Config{Endpoint: endpoint, DevMode: true}, log)
	if err := gate.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !gate.Ready() || gate.SPID() != spID {
		t.Fatalf("expected gate ready with spID %d, got ready=%v spID=%d", spID, gate.Ready(), gate.SPID())
	}
	if err := gate.RequireReady(); err != nil {
		t.Fatalf("RequireReady: %v", err)
	}
}
