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

import (
	"time"

	"github.com/google/uuid"
)

// TxType names the client operation a transaction record belongs to.
type TxType uint8

const (
	Deposit TxType = iota
	Withdraw
	Send
)

func (t TxType) String() string {
	switch t {
	case Deposit:
		return "deposit"
	case Withdraw:
		return "withdraw"
	case Send:
		return "send"
	default:
		return "unknown"
	}
}

// TxStatus tracks a transaction from creation to its terminal state. The two
// failed states carry a reason on the transaction itself.
type TxStatus uint8

const (
	InProgress TxStatus = iota
	Finished
	Failed
	// FailedReverted means at least one already-applied leg was rolled back.
	FailedReverted
)

func (s TxStatus) String() string {
	switch s {
	case InProgress:
		return "in_progress"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	case FailedReverted:
		return "failed_reverted"
	default:
		return "unknown"
	}
}

// OpDirection is the sign of one balance mutation.
type OpDirection uint8

const (
	Credit OpDirection = iota
	Debit
)

func (d OpDirection) String() string {
	if d == Debit {
		return "debit"
	}
	return "credit"
}

// OpStatus is set to OpReverted when a failing transaction rolls the leg back.
type OpStatus uint8

const (
	OpFinished OpStatus = iota
	OpReverted
)

func (s OpStatus) String() string {
	if s == OpReverted {
		return "reverted"
	}
	return "finished"
}

// Operation is one leg of a transaction: the sole leg of a deposit or
// withdraw, or one of the two legs of a send. It is recorded only after the
// balance write succeeded, PostBalance holding the balance it produced.
type Operation struct {
	Direction   OpDirection
	User        string
	Currency    string
	Amount      int64
	PostBalance int64
	Status      OpStatus
}

// Signed returns the amount with the direction's sign applied.
func (op *Operation) Signed() int64 {
	if op.Direction == Debit {
		return -op.Amount
	}
	return op.Amount
}

// Copy returns a detached copy of the operation.
func (op *Operation) Copy() *Operation {
	cpy := *op
	return &cpy
}

// Transaction is the unit of work spawned by one money-moving client request.
// Worker is the handle of the execution that owns the record.
type Transaction struct {
	ID         uuid.UUID
	Type       TxType
	Operations []*Operation
	Status     TxStatus
	Reason     string
	Worker     uint64
	Created    time.Time
}

// NewTransaction mints an in-progress record owned by the given worker.
func NewTransaction(typ TxType, worker uint64) *Transaction {
	return &Transaction{
		ID:      uuid.New(),
		Type:    typ,
		Status:  InProgress,
		Worker:  worker,
		Created: time.Now(),
	}
}

// Copy returns a deep copy; operations are detached as well.
func (tx *Transaction) Copy() *Transaction {
	cpy := *tx
	cpy.Operations = make([]*Operation, len(tx.Operations))
	for i, op := range tx.Operations {
		cpy.Operations[i] = op.Copy()
	}
	return &cpy
}

// Users lists the distinct account names touched by the recorded operations,
// in first-touched order.
func (tx *Transaction) Users() []string {
	var names []string
	seen := make(map[string]bool, 2)
	for _, op := range tx.Operations {
		if !seen[op.User] {
			seen[op.User] = true
			names = append(names, op.User)
		}
	}
	return names
}
