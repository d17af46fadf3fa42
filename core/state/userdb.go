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

// Package state holds the volatile account table backing the bank core.
package state

import (
	"errors"
	"sync"

	"github.com/tellerd/tellerd/core/types"
)

var (
	// ErrAlreadyExists is returned by Create for a name already taken.
	ErrAlreadyExists = errors.New("user already exists")

	// ErrNotFound is returned when no account carries the requested name.
	ErrNotFound = errors.New("user not found")
)

// UserDB is the process-wide account table. It promises entry-level thread
// safety and nothing more: Create is atomic against concurrent creates of the
// same name, Update replaces one account's balance map atomically, reads hand
// out detached copies. Operation ordering is the transaction gateway's job,
// not the store's.
type UserDB struct {
	mu    sync.RWMutex
	users map[string]*types.User
}

// NewUserDB returns an empty account table.
func NewUserDB() *UserDB {
	return &UserDB{users: make(map[string]*types.User)}
}

// Create registers a new account with no balances.
func (db *UserDB) Create(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.users[name]; ok {
		return ErrAlreadyExists
	}
	db.users[name] = types.NewUser(name)
	return nil
}

// Get returns a deep copy of the named account. Mutating the copy does not
// touch the store; changes are written back through Update.
func (db *UserDB) Get(name string) (*types.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	user, ok := db.users[name]
	if !ok {
		return nil, ErrNotFound
	}
	return user.Copy(), nil
}

// Update replaces the named account's balances wholesale. The input map is
// copied, so the caller keeps ownership of it.
func (db *UserDB) Update(name string, balances map[string]int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	user, ok := db.users[name]
	if !ok {
		return ErrNotFound
	}
	next := make(map[string]int64, len(balances))
	for currency, amount := range balances {
		next[currency] = amount
	}
	user.Balances = next
	return nil
}

// Exists reports whether the name is taken.
func (db *UserDB) Exists(name string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, ok := db.users[name]
	return ok
}

// Count returns the number of registered accounts.
func (db *UserDB) Count() int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return len(db.users)
}

// Names returns the registered account names in no particular order.
func (db *UserDB) Names() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.users))
	for name := range db.users {
		names = append(names, name)
	}
	return names
}
