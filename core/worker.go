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

package core

import (
	"errors"
	"sync"

	"github.com/rcrowley/go-metrics"

	"github.com/tellerd/tellerd/core/ledger"
	"github.com/tellerd/tellerd/core/types"
	"github.com/tellerd/tellerd/event"
	"github.com/tellerd/tellerd/log"
)

var (
	workerFinishMeter = metrics.GetOrRegisterCounter("worker/finished", nil)
	workerFailMeter   = metrics.GetOrRegisterCounter("worker/failed", nil)
	workerRevertMeter = metrics.GetOrRegisterCounter("worker/reverted", nil)
)

// errBalanceWrite marks a transaction aborted because a balance write into
// the user store failed mid-execution. Callers observe it as ErrUnexpected.
var errBalanceWrite = errors.New("failed to update user balance")

// txWorker executes exactly one admitted money movement. It owns the logical
// lock on its user(s) for its whole lifetime — the gateway admits no other
// operation on them — so its read-modify-write sequences cannot race. It
// posts exactly one terminal event on the mux and exits.
type txWorker struct {
	handle   uint64
	kind     ReqKind
	user     string
	to       string
	currency string
	amount   int64

	users UserStore
	txs   TxStore
	mux   *event.TypeMux
	log   log.Logger
}

func (w *txWorker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	switch w.kind {
	case ReqDeposit:
		w.runDeposit()
	case ReqWithdraw:
		w.runWithdraw()
	case ReqSend:
		w.runSend()
	default:
		w.log.Error("Worker spawned with unrunnable request", "kind", w.kind)
		w.fail(ErrUnexpected, w.user)
	}
}

func (w *txWorker) runDeposit() {
	user, err := w.users.Get(w.user)
	if err != nil {
		// The gateway verified existence at admission; defensive only.
		w.fail(ErrUserNotFound, w.user)
		return
	}
	tx := types.NewTransaction(types.Deposit, w.handle)
	if err := w.txs.Insert(tx); err != nil {
		w.fail(err, w.user)
		return
	}
	balance, err := w.apply(tx, types.Credit, user, w.amount)
	if err != nil {
		w.revert(tx, err)
		return
	}
	w.finish(tx)
	w.mux.Post(TxFinishedEvent{Handle: w.handle, Kind: ReqDeposit, User: w.user, Balance: balance})
}

func (w *txWorker) runWithdraw() {
	user, err := w.users.Get(w.user)
	if err != nil {
		w.fail(ErrUserNotFound, w.user)
		return
	}
	// The funds check runs under the user's lock, so it cannot go stale
	// before the debit. A shortage leaves no transaction record behind.
	if user.Balance(w.currency) < w.amount {
		w.fail(ErrNotEnoughFunds, w.user)
		return
	}
	tx := types.NewTransaction(types.Withdraw, w.handle)
	if err := w.txs.Insert(tx); err != nil {
		w.fail(err, w.user)
		return
	}
	balance, err := w.apply(tx, types.Debit, user, w.amount)
	if err != nil {
		w.revert(tx, err)
		return
	}
	w.finish(tx)
	w.mux.Post(TxFinishedEvent{Handle: w.handle, Kind: ReqWithdraw, User: w.user, Balance: balance})
}

func (w *txWorker) runSend() {
	sender, err := w.users.Get(w.user)
	if err != nil {
		w.fail(ErrUserNotFound, w.user)
		return
	}
	receiver, err := w.users.Get(w.to)
	if err != nil {
		w.fail(ErrUserNotFound, w.to)
		return
	}
	if sender.Balance(w.currency) < w.amount {
		w.fail(ErrNotEnoughFunds, w.user, w.to)
		return
	}
	tx := types.NewTransaction(types.Send, w.handle)
	if err := w.txs.Insert(tx); err != nil {
		w.fail(err, w.user, w.to)
		return
	}
	fromBalance, err := w.apply(tx, types.Debit, sender, w.amount)
	if err != nil {
		w.revert(tx, err)
		return
	}
	toBalance, err := w.apply(tx, types.Credit, receiver, w.amount)
	if err != nil {
		w.revert(tx, err)
		return
	}
	w.finish(tx)
	w.mux.Post(TxFinishedEvent{
		Handle: w.handle, Kind: ReqSend,
		User: w.user, Balance: fromBalance,
		To: w.to, ToBalance: toBalance,
	})
}

// apply executes one leg against the user store and records it on the
// transaction. The user copy is kept in sync so a second leg on the same
// record sees the mutation.
func (w *txWorker) apply(tx *types.Transaction, dir types.OpDirection, user *types.User, amount int64) (int64, error) {
	signed := amount
	if dir == types.Debit {
		signed = -signed
	}
	post := user.Balance(w.currency) + signed

	next := make(map[string]int64, len(user.Balances)+1)
	for currency, n := range user.Balances {
		next[currency] = n
	}
	next[w.currency] = post

	if err := w.users.Update(user.Name, next); err != nil {
		return 0, err
	}
	user.Balances = next

	tx.Operations = append(tx.Operations, &types.Operation{
		Direction:   dir,
		User:        user.Name,
		Currency:    w.currency,
		Amount:      amount,
		PostBalance: post,
		Status:      types.OpFinished,
	})
	if err := w.txs.Update(tx.ID, ledger.Patch{Operations: tx.Operations}); err != nil {
		// The balance is already applied; a lost ledger record is a logged
		// discrepancy, not a failure of the movement itself.
		w.log.Warn("Failed to record operation", "tx", tx.ID, "user", user.Name, "err", err)
	}
	return post, nil
}

// revert rolls back every applied leg of a failing transaction, newest
// first, and publishes the failure. Legs whose rollback write fails stay
// OpFinished and leave a recorded discrepancy; there is no retry.
func (w *txWorker) revert(tx *types.Transaction, cause error) {
	workerRevertMeter.Inc(1)
	w.log.Warn("Reverting transaction", "tx", tx.ID, "type", tx.Type, "err", cause)

	for i := len(tx.Operations) - 1; i >= 0; i-- {
		op := tx.Operations[i]
		if op.Status != types.OpFinished {
			continue
		}
		user, err := w.users.Get(op.User)
		if err == nil {
			next := make(map[string]int64, len(user.Balances))
			for currency, n := range user.Balances {
				next[currency] = n
			}
			next[op.Currency] -= op.Signed()
			err = w.users.Update(op.User, next)
		}
		if err != nil {
			w.log.Error("Failed to revert operation", "tx", tx.ID, "user", op.User, "err", err)
			continue
		}
		op.Status = types.OpReverted
	}
	status := types.Failed
	if len(tx.Operations) > 0 {
		status = types.FailedReverted
	}
	reason := cause.Error()
	if err := w.txs.Update(tx.ID, ledger.Patch{Operations: tx.Operations, Status: &status, Reason: &reason}); err != nil {
		w.log.Error("Failed to record transaction failure", "tx", tx.ID, "err", err)
	}
	w.fail(errBalanceWrite, tx.Users()...)
}

// finish marks the transaction committed in the ledger.
func (w *txWorker) finish(tx *types.Transaction) {
	workerFinishMeter.Inc(1)

	status := types.Finished
	if err := w.txs.Update(tx.ID, ledger.Patch{Status: &status}); err != nil {
		w.log.Warn("Failed to record transaction finish", "tx", tx.ID, "err", err)
	}
	w.log.Debug("Transaction finished", "tx", tx.ID, "type", tx.Type, "ops", len(tx.Operations))
}

// fail publishes the terminal failure event. A closed mux during shutdown is
// tolerated; the caller was already answered by the gateway.
func (w *txWorker) fail(err error, users ...string) {
	workerFailMeter.Inc(1)
	if perr := w.mux.Post(TxFailedEvent{Handle: w.handle, Err: err, Users: users}); perr != nil {
		w.log.Debug("Dropped failure event", "err", err, "post", perr)
	}
}
