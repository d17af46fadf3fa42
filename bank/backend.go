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

// Package bank assembles the tellerd components into a runnable service.
package bank

import (
	"sync"

	"github.com/tellerd/tellerd/core"
	"github.com/tellerd/tellerd/core/ledger"
	"github.com/tellerd/tellerd/core/state"
	"github.com/tellerd/tellerd/event"
	"github.com/tellerd/tellerd/internal/bankapi"
	"github.com/tellerd/tellerd/log"
)

// Bank wires the user store, the transaction ledger, the completion mux and
// the transaction gateway together. A Bank returned by New is live; Stop
// tears it down.
type Bank struct {
	config Config

	mux     *event.TypeMux
	users   *state.UserDB
	txs     *ledger.Store
	gateway *core.TxGateway
	api     *bankapi.API

	stopOnce sync.Once
}

// New constructs and starts a bank service.
func New(config *Config) *Bank {
	if config == nil {
		cfg := DefaultConfig
		config = &cfg
	}
	b := &Bank{
		config: *config,
		mux:    new(event.TypeMux),
		users:  state.NewUserDB(),
		txs:    ledger.New(),
	}
	b.gateway = core.NewTxGateway(config.Gateway, b.users, b.txs, b.mux)
	b.api = bankapi.NewAPI(b.users, b.txs, b.gateway)

	log.Info("Bank service started")
	return b
}

// Stop shuts the service down: the gateway drains first, then the mux
// closes. Safe to call more than once.
func (b *Bank) Stop() {
	b.stopOnce.Do(func() {
		b.gateway.Stop()
		b.mux.Stop()
		log.Info("Bank service stopped")
	})
}

// API returns the validated public surface of the bank.
func (b *Bank) API() *bankapi.API { return b.api }

// Gateway returns the transaction gateway, mainly for status inspection.
func (b *Bank) Gateway() *core.TxGateway { return b.gateway }

// UserDB returns the backing account table.
func (b *Bank) UserDB() *state.UserDB { return b.users }

// Ledger returns the transaction log.
func (b *Bank) Ledger() *ledger.Store { return b.txs }

// EventMux returns the completion bus.
func (b *Bank) EventMux() *event.TypeMux { return b.mux }
