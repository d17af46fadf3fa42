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

// Package ledger keeps the in-memory transaction log of the bank core.
//
// The ledger records what the workers did, not what the balances are; it is
// deliberately independent of the account table, and a crash can leave the
// two diverged. That divergence is tolerated by design.
package ledger

import (
	"errors"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/tellerd/tellerd/core/types"
)

var (
	// ErrKnownTransaction is returned on inserting an id the ledger has seen.
	ErrKnownTransaction = errors.New("transaction already known")

	// ErrNotFound is returned for lookups of ids never inserted.
	ErrNotFound = errors.New("transaction not found")
)

// Patch is the set of transaction fields Update is allowed to change. Nil
// fields are left untouched; anything not representable here cannot be
// patched at all.
type Patch struct {
	Type       *types.TxType
	Operations []*types.Operation
	Status     *types.TxStatus
	Reason     *string
	Worker     *uint64
}

// Store is the transaction log. All records are held in memory, keyed by id,
// with a per-user membership index over the accounts named in operations and
// an insertion-order journal for stable listings.
type Store struct {
	mu     sync.RWMutex
	all    map[uuid.UUID]*types.Transaction
	byUser map[string]mapset.Set[uuid.UUID]
	order  []uuid.UUID
}

// New returns an empty ledger.
func New() *Store {
	return &Store{
		all:    make(map[uuid.UUID]*types.Transaction),
		byUser: make(map[string]mapset.Set[uuid.UUID]),
	}
}

// Insert files a new transaction record. The record is copied in; the caller
// keeps ownership of its instance.
func (s *Store) Insert(tx *types.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.all[tx.ID]; ok {
		return ErrKnownTransaction
	}
	cpy := tx.Copy()
	s.all[tx.ID] = cpy
	s.order = append(s.order, tx.ID)
	s.index(cpy)
	return nil
}

// Get returns a deep copy of the record with the given id.
func (s *Store) Get(id uuid.UUID) (*types.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.all[id]
	if !ok {
		return nil, ErrNotFound
	}
	return tx.Copy(), nil
}

// Update applies the patch to the stored record. Operations are replaced
// wholesale when present, and any accounts newly named by them join the
// per-user index.
func (s *Store) Update(id uuid.UUID, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.all[id]
	if !ok {
		return ErrNotFound
	}
	if patch.Type != nil {
		tx.Type = *patch.Type
	}
	if patch.Operations != nil {
		tx.Operations = make([]*types.Operation, len(patch.Operations))
		for i, op := range patch.Operations {
			tx.Operations[i] = op.Copy()
		}
		s.index(tx)
	}
	if patch.Status != nil {
		tx.Status = *patch.Status
	}
	if patch.Reason != nil {
		tx.Reason = *patch.Reason
	}
	if patch.Worker != nil {
		tx.Worker = *patch.Worker
	}
	return nil
}

// ContentFrom returns copies of every record naming the user in at least one
// operation, oldest first.
func (s *Store) ContentFrom(user string) []*types.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[user]
	if ids == nil {
		return nil
	}
	var txs []*types.Transaction
	for _, id := range s.order {
		if ids.Contains(id) {
			txs = append(txs, s.all[id].Copy())
		}
	}
	return txs
}

// Count returns the number of filed records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.all)
}

// index must be called with the lock held.
func (s *Store) index(tx *types.Transaction) {
	for _, name := range tx.Users() {
		ids := s.byUser[name]
		if ids == nil {
			ids = mapset.NewThreadUnsafeSet[uuid.UUID]()
			s.byUser[name] = ids
		}
		ids.Add(tx.ID)
	}
}
