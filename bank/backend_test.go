// Copyright 2025 The tellerd Authors
// This file is part of the tellerd library.
//
// The tellerd library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The tellerd library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the tellerd library. If not, see <http://www.gnu.org/licenses/>.

package bank

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tellerd/tellerd/core"
)

func TestBankLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t,
		// The go-metrics meter arbiter runs for the process lifetime.
		goleak.IgnoreTopFunction("github.com/rcrowley/go-metrics.(*meterArbiter).tick"),
	)

	b := New(nil)
	api := b.API()

	require.NoError(t, api.CreateUser("alice"))
	balance, err := api.Deposit("alice", 12.34, "usd")
	require.NoError(t, err)
	require.Equal(t, 12.34, balance)

	require.Equal(t, 1, b.UserDB().Count())
	require.Equal(t, 1, b.Ledger().Count())

	b.Stop()
	b.Stop() // idempotent

	_, err = api.Deposit("alice", 1.0, "usd")
	require.ErrorIs(t, err, core.ErrGatewayStopped)
}

func TestBankConfigDefaults(t *testing.T) {
	b := New(&Config{Gateway: core.GatewayConfig{MaxPending: -1}})
	defer b.Stop()

	// A nonsensical pending cap is sanitized back to the default; the 11th
	// concurrent request is still the first rejectable one, so a single
	// serial caller never sees a rejection.
	require.NoError(t, b.API().CreateUser("alice"))
	for i := 0; i < 20; i++ {
		_, err := b.API().Deposit("alice", 1.0, "usd")
		require.NoError(t, err)
	}
}
