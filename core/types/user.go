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

package types

// User is one account: a unique name and its per-currency balances in minor
// units. Accounts are created empty and never deleted. Currencies are opaque
// case-sensitive strings.
type User struct {
	Name     string
	Balances map[string]int64
}

// NewUser returns an account with no balances.
func NewUser(name string) *User {
	return &User{Name: name, Balances: make(map[string]int64)}
}

// Balance reads one currency; currencies never touched read as zero.
func (u *User) Balance(currency string) int64 {
	return u.Balances[currency]
}

// Copy returns a deep copy whose balances map is detached from the original.
func (u *User) Copy() *User {
	balances := make(map[string]int64, len(u.Balances))
	for currency, amount := range u.Balances {
		balances[currency] = amount
	}
	return &User{Name: u.Name, Balances: balances}
}
