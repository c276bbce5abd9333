// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package minter

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
)

func testID(b byte) ids.ID {
	var id ids.ID
	id[31] = b
	return id
}

func TestMemToken(t *testing.T) {
	require := require.New(t)

	token := NewMemToken()
	ctx := context.Background()
	alice := testID(0x01)
	bob := testID(0x02)

	require.NoError(token.Mint(ctx, alice, uint256.NewInt(100)))
	require.Equal(uint256.NewInt(100), token.BalanceOf(alice))
	require.Equal(uint256.NewInt(100), token.TotalSupply())

	require.NoError(token.Transfer(ctx, alice, bob, uint256.NewInt(30)))
	require.Equal(uint256.NewInt(70), token.BalanceOf(alice))
	require.Equal(uint256.NewInt(30), token.BalanceOf(bob))
	require.Equal(uint256.NewInt(100), token.TotalSupply())

	require.NoError(token.Burn(ctx, bob, uint256.NewInt(30)))
	require.True(token.BalanceOf(bob).IsZero())
	require.Equal(uint256.NewInt(70), token.TotalSupply())

	err := token.Burn(ctx, alice, uint256.NewInt(71))
	require.ErrorIs(err, ErrInsufficientBalance)

	err = token.Transfer(ctx, bob, alice, uint256.NewInt(1))
	require.ErrorIs(err, ErrInsufficientBalance)

	// Balances of unknown holders read as zero.
	require.True(token.BalanceOf(testID(0xFF)).IsZero())
}

func TestMemTokenSupplyOverflow(t *testing.T) {
	require := require.New(t)

	token := NewMemToken()
	ctx := context.Background()
	alice := testID(0x01)

	almostMax := new(uint256.Int).Sub(new(uint256.Int).SetAllOne(), uint256.NewInt(5))
	require.NoError(token.Mint(ctx, alice, almostMax))

	err := token.Mint(ctx, alice, uint256.NewInt(6))
	require.ErrorIs(err, ErrSupplyOverflow)

	// The failed mint left the supply untouched.
	require.Equal(almostMax, token.TotalSupply())
	require.NoError(token.Mint(ctx, alice, uint256.NewInt(5)))
}
