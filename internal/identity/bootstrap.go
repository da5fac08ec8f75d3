package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/chain"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/logging"
)

// ResolveSPIDInterval is the fixed backoff between service-provider-ID
// resolution attempts.
const ResolveSPIDInterval = 5 * time.Second

// RegistryPollIntervalProd is the long-poll interval for the
// registry-deployed check in production.
const RegistryPollIntervalProd = 10 * time.Minute

// RegistryPollIntervalDev is the long-poll interval in dev_mode.
const RegistryPollIntervalDev = 10 * time.Second

// RegisterRetryInterval is the fixed backoff between self-registration
// attempts.
const RegisterRetryInterval = 10 * time.Second

// Config configures Bootstrap.
type Config struct {
	Endpoint string
	DevMode  bool
}

// Bootstrap runs the three-step identity sequence: resolve this node's
// service-provider ID, wait for the replica-set registry to be deployed,
// then register self on it. It blocks until all three succeed or ctx is
// canceled, retrying each step indefinitely on failure.
func Bootstrap(ctx context.Context, chainClient chain.IChainClient, cfg Config, log *logging.ComponentLogger) (int64, error) {
	spID, err := resolveSPID(ctx, chainClient, cfg.Endpoint, log)
	if err != nil {
		return 0, err
	}
	log.Infof("resolved service-provider id %d for %s", spID, cfg.Endpoint)

	if err := waitForRegistry(ctx, chainClient, cfg.DevMode, log); err != nil {
		return 0, err
	}
	log.Infof("replica-set registry is deployed")

	if err := registerSelf(ctx, chainClient, spID, cfg.Endpoint, log); err != nil {
		return 0, err
	}
	log.Infof("registered self as service-provider %d", spID)

	return spID, nil
}

func resolveSPID(ctx context.Context, chainClient chain.IChainClient, endpoint string, log *logging.ComponentLogger) (int64, error) {
	for {
		spID, err := chainClient.ResolveSPID(endpoint)
		if err != nil {
			log.Warnf("resolve service-provider id: %v", err)
		} else if spID != 0 {
			return spID, nil
		}
		if err := sleep(ctx, ResolveSPIDInterval); err != nil {
			return 0, err
		}
	}
}

func waitForRegistry(ctx context.Context, chainClient chain.IChainClient, devMode bool, log *logging.ComponentLogger) error {
	interval := RegistryPollIntervalProd
	if devMode {
		interval = RegistryPollIntervalDev
	}
	for {
		deployed, err := chainClient.IsRegistryDeployed()
		if err != nil {
			log.Warnf("check registry deployed: %v", err)
		} else if deployed {
			return nil
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
}

func registerSelf(ctx context.Context, chainClient chain.IChainClient, spID int64, endpoint string, log *logging.ComponentLogger) error {
	for {
		err := chainClient.RegisterServiceProvider(spID, endpoint)
		if err == nil {
			return nil
		}
		log.Warnf("register self: %v", err)
		if err := sleep(ctx, RegisterRetryInterval); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("identity: bootstrap canceled: %w", ctx.Err())
	}
}
