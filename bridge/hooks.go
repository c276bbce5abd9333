// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"context"

	"github.com/luxfi/ids"

	"github.com/luxfi/cctp/payload"
)

// HookHandler executes the hook payload attached to a received deposit. The
// hook runs after the mint completed; a hook failure is logged and never
// unwinds the mint.
type HookHandler interface {
	ExecuteHook(ctx context.Context, sourceDomain uint32, localToken ids.ID, burn *payload.BurnMessage) error
}

// HookHandlerFunc adapts a function to HookHandler.
type HookHandlerFunc func(ctx context.Context, sourceDomain uint32, localToken ids.ID, burn *payload.BurnMessage) error

func (f HookHandlerFunc) ExecuteHook(ctx context.Context, sourceDomain uint32, localToken ids.ID, burn *payload.BurnMessage) error {
	return f(ctx, sourceDomain, localToken, burn)
}
