package main

import (
	"go.uber.org/zap"

	"crowdfund-ledger/internal/config"
	"crowdfund-ledger/internal/events"
	"crowdfund-ledger/internal/replay"
	"crowdfund-ledger/internal/token"
)

// loadConfig reads the shared configuration and applies the command-line
// overrides for the gateway and the authorizer.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return nil, err
	}
	return applyOverrides(cfg, opts.gateway, opts.auth)
}

func applyOverrides(cfg *config.Config, gateway, authMode string) (*config.Config, error) {
	if gateway != "" {
		cfg.Gateway.Mode = gateway
	}
	if authMode != "" {
		cfg.Auth = authMode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newGateway returns the remote token ledger, or nil so that every scenario
// runs on a fresh in-memory ledger.
func newGateway(cfg *config.Config) token.Gateway {
	if cfg.Gateway.Mode != config.GatewayRPC {
		return nil
	}
	return token.NewRPCClient(cfg.Gateway.Endpoint,
		token.WithTimeout(cfg.Gateway.Timeout),
		token.WithMaxRetries(cfg.Gateway.MaxRetries),
	)
}

func runnerOptions(cfg *config.Config, gateway token.Gateway, log *zap.Logger, sinks []events.Sink) []replay.Option {
	ro := []replay.Option{
		replay.WithLogger(log),
		replay.WithSinks(sinks...),
	}
	if gateway != nil {
		ro = append(ro, replay.WithGateway(gateway))
	}
	if cfg.Auth == config.AuthEd25519 {
		ro = append(ro, replay.WithSignedCallers())
	}
	return ro
}
