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

package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tellerd/tellerd/core/types"
)

func TestLedgerInsert(t *testing.T) {
	s := New()
	tx := types.NewTransaction(types.Deposit, 1)

	require.NoError(t, s.Insert(tx))
	require.ErrorIs(t, s.Insert(tx), ErrKnownTransaction)
	require.Equal(t, 1, s.Count())

	got, err := s.Get(tx.ID)
	require.NoError(t, err)
	require.Equal(t, tx.ID, got.ID)
	require.Equal(t, types.InProgress, got.Status)

	_, err = s.Get(uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLedgerInsertCopies(t *testing.T) {
	s := New()
	tx := types.NewTransaction(types.Withdraw, 7)
	require.NoError(t, s.Insert(tx))

	// Mutating the caller's record after Insert must not reach the store.
	tx.Status = types.Finished
	got, err := s.Get(tx.ID)
	require.NoError(t, err)
	require.Equal(t, types.InProgress, got.Status)
}

func TestLedgerPatch(t *testing.T) {
	s := New()
	tx := types.NewTransaction(types.Send, 3)
	require.NoError(t, s.Insert(tx))

	ops := []*types.Operation{
		{Direction: types.Debit, User: "bob", Currency: "usd", Amount: 1000, PostBalance: 0},
		{Direction: types.Credit, User: "carol", Currency: "usd", Amount: 1000, PostBalance: 1000},
	}
	require.NoError(t, s.Update(tx.ID, Patch{Operations: ops}))

	status := types.Finished
	require.NoError(t, s.Update(tx.ID, Patch{Status: &status}))

	got, err := s.Get(tx.ID)
	require.NoError(t, err)
	require.Equal(t, types.Finished, got.Status)
	require.Len(t, got.Operations, 2)
	// Nil patch fields stay untouched.
	require.Equal(t, types.Send, got.Type)
	require.Equal(t, uint64(3), got.Worker)

	require.ErrorIs(t, s.Update(uuid.New(), Patch{Status: &status}), ErrNotFound)
}

func TestLedgerContentFrom(t *testing.T) {
	s := New()

	first := types.NewTransaction(types.Deposit, 1)
	first.Operations = []*types.Operation{{Direction: types.Credit, User: "alice", Currency: "usd", Amount: 100, PostBalance: 100}}
	require.NoError(t, s.Insert(first))

	second := types.NewTransaction(types.Send, 2)
	second.Operations = []*types.Operation{
		{Direction: types.Debit, User: "alice", Currency: "usd", Amount: 50, PostBalance: 50},
		{Direction: types.Credit, User: "bob", Currency: "usd", Amount: 50, PostBalance: 50},
	}
	require.NoError(t, s.Insert(second))

	alice := s.ContentFrom("alice")
	require.Len(t, alice, 2)
	require.Equal(t, first.ID, alice[0].ID, "listing must be oldest first")
	require.Equal(t, second.ID, alice[1].ID)

	bob := s.ContentFrom("bob")
	require.Len(t, bob, 1)
	require.Equal(t, second.ID, bob[0].ID)

	require.Empty(t, s.ContentFrom("ghost"))
}

// Operations patched in after insertion join the per-user index.
func TestLedgerIndexFollowsPatch(t *testing.T) {
	s := New()
	tx := types.NewTransaction(types.Deposit, 1)
	require.NoError(t, s.Insert(tx))
	require.Empty(t, s.ContentFrom("alice"))

	ops := []*types.Operation{{Direction: types.Credit, User: "alice", Currency: "usd", Amount: 100, PostBalance: 100}}
	require.NoError(t, s.Update(tx.ID, Patch{Operations: ops}))
	require.Len(t, s.ContentFrom("alice"), 1)
}
