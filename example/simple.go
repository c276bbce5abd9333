// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

// A two-domain walkthrough: a deposit burned on domain A is attested,
// relayed, and minted on domain B.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/crypto"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/cctp"
	"github.com/luxfi/cctp/backend"
	"github.com/luxfi/cctp/bridge"
	"github.com/luxfi/cctp/minter"
	"github.com/luxfi/cctp/relayer"
	"github.com/luxfi/cctp/service"
	"github.com/luxfi/cctp/transmitter"
)

const (
	domainA uint32 = 1
	domainB uint32 = 2
)

func id(b byte) ids.ID {
	var out ids.ID
	out[31] = b
	return out
}

var (
	ownerID      = id(0x01)
	controllerID = id(0x02)
	feeTakerID   = id(0x0F)
	relayerID    = id(0x0C)

	messengerA = id(0x1A)
	messengerB = id(0x2A)
	tokenA     = id(0x10)
	tokenB     = id(0x20)

	aliceID = id(0xA1)
	bobID   = id(0xB1)
)

// domain bundles the components one chain would run.
type domain struct {
	id        uint32
	transmit  *transmitter.Transmitter
	tokens    *minter.TokenMinter
	token     *minter.MemToken
	messenger *bridge.TokenMessenger
}

func newDomain(domainID uint32, messengerID, localToken ids.ID, attesters []common.Address) (*domain, error) {
	set, err := cctp.NewAttesterSet(attesters, 2)
	if err != nil {
		return nil, err
	}
	transmit, err := transmitter.New(transmitter.Config{
		LocalDomain:     domainID,
		Owner:           ownerID,
		Pauser:          ownerID,
		AttesterManager: ownerID,
	}, log.NoLog{}, set, backend.NewMemoryBackend(), nil)
	if err != nil {
		return nil, err
	}

	tokens, err := minter.NewTokenMinter(minter.Config{
		Owner:           ownerID,
		Pauser:          ownerID,
		TokenController: controllerID,
	}, log.NoLog{})
	if err != nil {
		return nil, err
	}
	token := minter.NewMemToken()
	if err := tokens.RegisterLocalToken(localToken, token); err != nil {
		return nil, err
	}
	if err := tokens.AddLocalMessenger(ownerID, messengerID); err != nil {
		return nil, err
	}

	messenger, err := bridge.New(bridge.Config{
		MessengerID:      messengerID,
		Owner:            ownerID,
		Denylister:       ownerID,
		MinFeeController: ownerID,
		FeeRecipient:     feeTakerID,
	}, log.NoLog{}, transmit, tokens, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := messenger.Register(); err != nil {
		return nil, err
	}

	return &domain{
		id:        domainID,
		transmit:  transmit,
		tokens:    tokens,
		token:     token,
		messenger: messenger,
	}, nil
}

// connect links the burn/mint pair and trusts the remote messenger.
func connect(local, remote *domain, localToken, remoteToken, remoteMessenger ids.ID) error {
	if err := local.tokens.LinkTokenPair(controllerID, localToken, remote.id, remoteToken); err != nil {
		return err
	}
	if err := local.tokens.SetMaxBurnAmountPerMessage(controllerID, localToken, uint256.NewInt(1_000_000)); err != nil {
		return err
	}
	return local.messenger.AddRemoteTokenMessenger(ownerID, remote.id, remoteMessenger)
}

func run() error {
	ctx := context.Background()

	// Three attesters; every domain trusts them at threshold two.
	signers := make([]cctp.Signer, 3)
	addrs := make([]common.Address, 3)
	for i := range signers {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		signers[i] = cctp.NewSigner(key)
		addrs[i] = signers[i].Address()
	}

	a, err := newDomain(domainA, messengerA, tokenA, addrs)
	if err != nil {
		return err
	}
	b, err := newDomain(domainB, messengerB, tokenB, addrs)
	if err != nil {
		return err
	}
	if err := connect(a, b, tokenA, tokenB, messengerB); err != nil {
		return err
	}
	if err := connect(b, a, tokenB, tokenA, messengerA); err != nil {
		return err
	}

	// One attestation service signing with two of the three attester keys,
	// charging a fee of 1 per burn.
	svc, err := service.New(service.Config{
		Fee: uint256.NewInt(1),
	}, log.NoLog{}, signers[:2], backend.NewMemoryBackend(), nil, nil)
	if err != nil {
		return err
	}

	// One relayer serving both domains, subscribed to both transmitters.
	relay, err := relayer.New(relayer.Config{CallerID: relayerID},
		log.NoLog{},
		relayer.NewServiceProvider(svc),
		map[uint32]*transmitter.Transmitter{
			domainA: a.transmit,
			domainB: b.transmit,
		}, nil)
	if err != nil {
		return err
	}
	a.transmit.RegisterSink(relay.Sink())
	b.transmit.RegisterSink(relay.Sink())

	// Fund alice on domain A.
	if err := a.token.Mint(ctx, aliceID, uint256.NewInt(1000)); err != nil {
		return err
	}

	fmt.Println("Before deposit:")
	printBalances(a, b)

	// Alice deposits 250 for bob on domain B, accepting a fee up to 5.
	sent, err := a.messenger.DepositForBurn(
		ctx,
		aliceID,
		uint256.NewInt(250),
		domainB,
		bobID,
		tokenA,
		ids.Empty,
		uint256.NewInt(5),
		cctp.FinalityThresholdFinalized,
	)
	if err != nil {
		return err
	}
	fmt.Printf("\nDeposited for burn: event index %d, %d byte message\n",
		sent.Index, len(sent.Raw))

	// The relayer sink already attested and delivered the message.
	fmt.Println("\nAfter deposit:")
	printBalances(a, b)
	return nil
}

func printBalances(a, b *domain) {
	fmt.Printf("  domain A: alice=%s supply=%s\n",
		a.token.BalanceOf(aliceID).Dec(), a.token.TotalSupply().Dec())
	fmt.Printf("  domain B: bob=%s fees=%s supply=%s\n",
		b.token.BalanceOf(bobID).Dec(),
		b.token.BalanceOf(feeTakerID).Dec(),
		b.token.TotalSupply().Dec())
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
