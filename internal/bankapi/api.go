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

// Package bankapi implements the public client surface of the bank: raw
// input validation, money parsing and formatting, and the mapping of store
// results onto the public error taxonomy. Everything behind it speaks minor
// units; floats exist only here.
package bankapi

import (
	"errors"

	"github.com/tellerd/tellerd/core"
	"github.com/tellerd/tellerd/core/ledger"
	"github.com/tellerd/tellerd/core/state"
	"github.com/tellerd/tellerd/core/types"
)

// API is the validated front door of the bank. All balance movements go
// through the gateway; user creation and history reads hit the stores
// directly.
type API struct {
	users   *state.UserDB
	txs     *ledger.Store
	gateway *core.TxGateway
}

// NewAPI assembles the public API over its backing components.
func NewAPI(users *state.UserDB, txs *ledger.Store, gateway *core.TxGateway) *API {
	return &API{users: users, txs: txs, gateway: gateway}
}

// CreateUser registers a new account with no balances.
func (api *API) CreateUser(name string) error {
	if name == "" {
		return core.ErrWrongArguments
	}
	if err := api.users.Create(name); err != nil {
		if errors.Is(err, state.ErrAlreadyExists) {
			return core.ErrUserAlreadyExists
		}
		return err
	}
	return nil
}

// Deposit credits the user's account and returns the new balance.
func (api *API) Deposit(user string, amount float64, currency string) (float64, error) {
	units, err := moveArgs(user, amount, currency)
	if err != nil {
		return 0, err
	}
	balance, err := api.gateway.Deposit(user, currency, units)
	if err != nil {
		return 0, err
	}
	return types.FormatAmount(balance), nil
}

// Withdraw debits the user's account and returns the new balance.
func (api *API) Withdraw(user string, amount float64, currency string) (float64, error) {
	units, err := moveArgs(user, amount, currency)
	if err != nil {
		return 0, err
	}
	balance, err := api.gateway.Withdraw(user, currency, units)
	if err != nil {
		return 0, err
	}
	return types.FormatAmount(balance), nil
}

// Send moves money between two distinct accounts and returns both new
// balances, sender first.
func (api *API) Send(from, to string, amount float64, currency string) (float64, float64, error) {
	if to == "" || from == to {
		return 0, 0, core.ErrWrongArguments
	}
	units, err := moveArgs(from, amount, currency)
	if err != nil {
		return 0, 0, err
	}
	fromBalance, toBalance, err := api.gateway.Send(from, to, currency, units)
	if err != nil {
		return 0, 0, err
	}
	return types.FormatAmount(fromBalance), types.FormatAmount(toBalance), nil
}

// GetBalance reads the user's balance in one currency. The read is
// serialized with the user's pending movements.
func (api *API) GetBalance(user, currency string) (float64, error) {
	if user == "" || currency == "" {
		return 0, core.ErrWrongArguments
	}
	balance, err := api.gateway.Balance(user, currency)
	if err != nil {
		return 0, err
	}
	return types.FormatAmount(balance), nil
}

// Transactions lists every ledger record naming the user, oldest first.
func (api *API) Transactions(user string) ([]*types.Transaction, error) {
	if user == "" {
		return nil, core.ErrWrongArguments
	}
	if !api.users.Exists(user) {
		return nil, core.ErrUserNotFound
	}
	return api.txs.ContentFrom(user), nil
}

// moveArgs validates the shared argument shape of the money-moving calls and
// converts the amount to minor units. NaN and infinities fall out of the
// range checks; an amount rounding to zero hundredths is as unusable as a
// negative one.
func moveArgs(user string, amount float64, currency string) (int64, error) {
	if user == "" || currency == "" || !(amount > 0) {
		return 0, core.ErrWrongArguments
	}
	units, err := types.ParseAmount(amount)
	if err != nil || units <= 0 {
		return 0, core.ErrWrongArguments
	}
	return units, nil
}
