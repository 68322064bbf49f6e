package main

import (
	"fmt"

	"github.com/heartbeatfm/heartbeat-server/go/internal/clock"
	"github.com/heartbeatfm/heartbeat-server/go/internal/gateway"
	"github.com/heartbeatfm/heartbeat-server/go/internal/room"
)

type Services struct {
	Store   *room.Store
	Gateway *gateway.Service
}

func setupServices(cfg *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Clock + room store → room services → gateway
	store := room.NewStore()
	clk := clock.New()

	gw, err := gateway.NewService(cfg.gatewayConfig(), store, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	return &Services{
		Store:   store,
		Gateway: gw,
	}, nil
}
