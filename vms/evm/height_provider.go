// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package evm connects attestation components to an EVM-compatible domain
// over JSON-RPC.
package evm

import (
	"context"
	"fmt"

	"github.com/luxfi/geth/ethclient"
	"github.com/luxfi/log"

	"github.com/luxfi/cctp/bridge"
)

// Client is the subset of the EVM RPC client used to track domain heights.
// *ethclient.Client satisfies it.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

var _ Client = (*ethclient.Client)(nil)

// HeightProvider reports the latest block height of an EVM domain. The
// attestation service uses it to anchor burn expiration blocks to the source
// chain tip at signing time.
type HeightProvider struct {
	logger log.Logger
	client Client
}

var _ bridge.HeightProvider = (*HeightProvider)(nil)

// NewHeightProvider wraps an RPC client as a height source.
func NewHeightProvider(logger log.Logger, client Client) *HeightProvider {
	return &HeightProvider{
		logger: logger,
		client: client,
	}
}

// Dial connects to the RPC endpoint at rpcURL and returns a height provider
// backed by it. The chain ID fetch doubles as a connectivity check so a bad
// endpoint fails here rather than on the first attestation.
func Dial(ctx context.Context, logger log.Logger, rpcURL string) (*HeightProvider, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID from rpc endpoint: %w", err)
	}
	logger.Info(
		"connected to evm endpoint",
		log.String("evmChainID", chainID.String()),
	)

	return NewHeightProvider(logger, client), nil
}

// Height returns the latest block number of the domain.
func (p *HeightProvider) Height(ctx context.Context) (uint64, error) {
	height, err := p.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch block number: %w", err)
	}
	p.logger.Debug("fetched domain height", log.Uint64("height", height))
	return height, nil
}
