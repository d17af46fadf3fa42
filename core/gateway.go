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

// Package core implements the transaction gateway of the bank: admission
// control, per-user serialization, two-account transfer locking and the
// dispatch of admitted operations to workers.
package core

import (
	"errors"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/google/uuid"
	"github.com/rcrowley/go-metrics"

	"github.com/tellerd/tellerd/core/ledger"
	"github.com/tellerd/tellerd/core/types"
	"github.com/tellerd/tellerd/event"
	"github.com/tellerd/tellerd/log"
)

var (
	// Admission outcomes
	admitMeter   = metrics.GetOrRegisterCounter("gateway/admit", nil)
	enqueueMeter = metrics.GetOrRegisterCounter("gateway/enqueue", nil)
	rejectMeter  = metrics.GetOrRegisterCounter("gateway/reject", nil)
	parkMeter    = metrics.GetOrRegisterCounter("gateway/park", nil)
	forceMeter   = metrics.GetOrRegisterCounter("gateway/force", nil) // Cycle-breaking force runs

	// Completion outcomes
	finishMeter = metrics.GetOrRegisterCounter("gateway/finished", nil)
	failMeter   = metrics.GetOrRegisterCounter("gateway/failed", nil)

	// Submission-to-reply latency as observed by the gateway
	waitTimer = metrics.GetOrRegisterTimer("gateway/wait", nil)
)

// UserStore is the slice of the account table the gateway and its workers
// need. *state.UserDB satisfies it; tests substitute gated wrappers.
type UserStore interface {
	Get(name string) (*types.User, error)
	Update(name string, balances map[string]int64) error
	Exists(name string) bool
}

// TxStore is the slice of the transaction ledger the workers write through.
type TxStore interface {
	Insert(tx *types.Transaction) error
	Update(id uuid.UUID, patch ledger.Patch) error
}

// ReqKind names the operation a submission asks for.
type ReqKind uint8

const (
	ReqDeposit ReqKind = iota
	ReqWithdraw
	ReqSend
	ReqBalance
)

func (k ReqKind) String() string {
	switch k {
	case ReqDeposit:
		return "deposit"
	case ReqWithdraw:
		return "withdraw"
	case ReqSend:
		return "send"
	case ReqBalance:
		return "balance"
	default:
		return "unknown"
	}
}

// TxType maps the request kind onto the ledger's transaction type. Only
// money-moving kinds have one.
func (k ReqKind) TxType() types.TxType {
	switch k {
	case ReqWithdraw:
		return types.Withdraw
	case ReqSend:
		return types.Send
	default:
		return types.Deposit
	}
}

// Reply is the single message a blocked caller receives. ToBalance is set for
// transfers only.
type Reply struct {
	Balance   int64
	ToBalance int64
	Err       error
}

// submission is one client request travelling through the gateway: the
// operation, the one-shot reply channel and the admission timestamp. The
// gateway writes resc exactly once and never reads it.
type submission struct {
	kind     ReqKind
	user     string // initiating account; the sender for ReqSend
	to       string // receiving account, ReqSend only
	currency string
	amount   int64

	resc chan Reply
	born time.Time
}

// userSlot is the gateway's per-user bookkeeping record. It is owned
// exclusively by the gateway loop; no lock guards it.
//
// A slot is locked while current is set or an inbound transfer holds it.
// current is the operation owning the user's lock: running in a worker
// (running=true), or a transfer parked until its receiver frees
// (running=false, waitFor=receiver). inbound counts running transfers
// crediting this user; it is capped at one and never charged to pending.
type userSlot struct {
	name    string
	current *submission
	running bool
	waitFor string
	inbound int

	queue    deque.Deque[*submission]
	watchers []string // senders whose parked transfer waits on this user
}

func (u *userSlot) locked() bool {
	return u.current != nil || u.inbound > 0
}

// pending counts the user's own admitted-but-unfinished operations: the
// current one plus everything queued behind it.
func (u *userSlot) pending() int {
	n := u.queue.Len()
	if u.current != nil {
		n++
	}
	return n
}

func (u *userSlot) parked() bool {
	return u.current != nil && !u.running
}

// statusReq asks the loop for one slot's status snapshot.
type statusReq struct {
	user string
	resc chan SlotStatus
}

// SlotStatus is a point-in-time snapshot of one user's slot, taken inside the
// gateway loop. The zero value describes an idle user.
type SlotStatus struct {
	Locked  bool
	Running bool
	Parked  bool
	Inbound int
	Pending int
	Queued  int
}

// GatewayStats summarizes the gateway's live state.
type GatewayStats struct {
	Slots    int // users with live bookkeeping
	Locked   int // slots currently held
	Parked   int // transfers waiting on a busy receiver
	Queued   int // requests waiting in per-user queues
	Inflight int // running workers
}

// TxGateway serializes all money movements. Every admission decision is made
// by a single loop goroutine that owns the slot table, so the per-request
// state transitions are atomic without locking; balance mutations happen in
// short-lived workers, exactly one per held user lock.
type TxGateway struct {
	config GatewayConfig
	users  UserStore
	txs    TxStore
	mux    *event.TypeMux

	// Loop-owned state. Only the loop goroutine touches these.
	slots    map[string]*userSlot
	inflight map[uint64]*submission
	handles  uint64

	submitCh chan *submission
	statsCh  chan chan GatewayStats
	statusCh chan *statusReq
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTxGateway creates the gateway and starts its coordinator loop.
func NewTxGateway(config GatewayConfig, users UserStore, txs TxStore, mux *event.TypeMux) *TxGateway {
	gw := &TxGateway{
		config:   config.sanitize(),
		users:    users,
		txs:      txs,
		mux:      mux,
		slots:    make(map[string]*userSlot),
		inflight: make(map[uint64]*submission),
		submitCh: make(chan *submission),
		statsCh:  make(chan chan GatewayStats),
		statusCh: make(chan *statusReq),
		quit:     make(chan struct{}),
	}
	gw.wg.Add(1)
	go gw.loop()

	log.Info("Transaction gateway started", "maxpending", gw.config.MaxPending)
	return gw
}

// Stop shuts the gateway down: pending and queued callers are answered with
// ErrGatewayStopped, running workers are waited out.
func (gw *TxGateway) Stop() {
	gw.stopOnce.Do(func() { close(gw.quit) })
	gw.wg.Wait()
	log.Info("Transaction gateway stopped")
}

// Deposit credits the user and returns the new balance. It blocks until the
// operation ran or was rejected.
func (gw *TxGateway) Deposit(user, currency string, amount int64) (int64, error) {
	if user == "" || currency == "" || amount <= 0 {
		return 0, ErrWrongArguments
	}
	r := gw.submit(&submission{kind: ReqDeposit, user: user, currency: currency, amount: amount})
	return r.Balance, r.Err
}

// Withdraw debits the user and returns the new balance.
func (gw *TxGateway) Withdraw(user, currency string, amount int64) (int64, error) {
	if user == "" || currency == "" || amount <= 0 {
		return 0, ErrWrongArguments
	}
	r := gw.submit(&submission{kind: ReqWithdraw, user: user, currency: currency, amount: amount})
	return r.Balance, r.Err
}

// Send moves amount from one user to another and returns both new balances.
func (gw *TxGateway) Send(from, to, currency string, amount int64) (int64, int64, error) {
	if from == "" || to == "" || from == to || currency == "" || amount <= 0 {
		return 0, 0, ErrWrongArguments
	}
	r := gw.submit(&submission{kind: ReqSend, user: from, to: to, currency: currency, amount: amount})
	return r.Balance, r.ToBalance, r.Err
}

// Balance reads the user's balance in the given currency. The read is
// serialized with the user's money movements like any other operation.
func (gw *TxGateway) Balance(user, currency string) (int64, error) {
	if user == "" || currency == "" {
		return 0, ErrWrongArguments
	}
	r := gw.submit(&submission{kind: ReqBalance, user: user, currency: currency})
	return r.Balance, r.Err
}

// Stats returns live gateway statistics. Zero after shutdown.
func (gw *TxGateway) Stats() GatewayStats {
	resc := make(chan GatewayStats, 1)
	select {
	case gw.statsCh <- resc:
		return <-resc
	case <-gw.quit:
		return GatewayStats{}
	}
}

// Status returns a snapshot of one user's slot. Zero for idle or unknown
// users and after shutdown.
func (gw *TxGateway) Status(user string) SlotStatus {
	req := &statusReq{user: user, resc: make(chan SlotStatus, 1)}
	select {
	case gw.statusCh <- req:
		return <-req.resc
	case <-gw.quit:
		return SlotStatus{}
	}
}

// submit hands the request to the loop and blocks for the single reply.
// Every submission accepted by the loop is answered exactly once, including
// during shutdown.
func (gw *TxGateway) submit(s *submission) Reply {
	s.resc = make(chan Reply, 1)
	s.born = time.Now()

	select {
	case gw.submitCh <- s:
	case <-gw.quit:
		return Reply{Err: ErrGatewayStopped}
	}
	return <-s.resc
}

// loop is the coordinator. All slot and inflight mutations happen here, one
// message at a time: client submissions, worker completion events from the
// mux, status probes and the periodic stats report.
func (gw *TxGateway) loop() {
	defer gw.wg.Done()

	sub := gw.mux.Subscribe(TxFinishedEvent{}, TxFailedEvent{})
	defer sub.Unsubscribe()

	report := time.NewTicker(gw.config.ReportInterval)
	defer report.Stop()

	for {
		select {
		case s := <-gw.submitCh:
			gw.admit(s)

		case ev, ok := <-sub.Chan():
			if !ok {
				return
			}
			switch data := ev.Data.(type) {
			case TxFinishedEvent:
				gw.finish(data)
			case TxFailedEvent:
				gw.fail(data)
			}

		case resc := <-gw.statsCh:
			resc <- gw.stats()

		case req := <-gw.statusCh:
			req.resc <- gw.status(req.user)

		case <-report.C:
			s := gw.stats()
			if s.Locked > 0 || s.Queued > 0 || s.Inflight > 0 {
				log.Debug("Gateway status report", "slots", s.Slots, "locked", s.Locked,
					"parked", s.Parked, "queued", s.Queued, "inflight", s.Inflight)
			}

		case <-gw.quit:
			gw.shutdown()
			return
		}
	}
}

// slot returns the user's bookkeeping record, creating it lazily.
func (gw *TxGateway) slot(name string) *userSlot {
	u := gw.slots[name]
	if u == nil {
		u = &userSlot{name: name}
		gw.slots[name] = u
	}
	return u
}

// dropIfIdle removes a slot carrying no state. Idle slots are not kept
// around; the table only holds users with live bookkeeping.
func (gw *TxGateway) dropIfIdle(u *userSlot) {
	if u.current == nil && u.inbound == 0 && u.queue.Len() == 0 && len(u.watchers) == 0 {
		delete(gw.slots, u.name)
	}
}

func (gw *TxGateway) reply(s *submission, r Reply) {
	waitTimer.UpdateSince(s.born)
	s.resc <- r
}

// admit decides one fresh submission: run it now, queue it behind the user's
// current operation, or reject it at the pending cap.
func (gw *TxGateway) admit(s *submission) {
	u := gw.slot(s.user)
	if u.locked() {
		// The sender is the rate-limited party; for transfers the receiver
		// is neither examined nor charged here.
		if u.pending() >= gw.config.MaxPending {
			rejectMeter.Inc(1)
			gw.reply(s, Reply{Err: ErrTooManyRequests})
			return
		}
		enqueueMeter.Inc(1)
		u.queue.PushBack(s)
		return
	}
	admitMeter.Inc(1)
	u.current = s
	if !gw.start(u) {
		// Completed synchronously (balance read or lookup error) without
		// ever holding the lock across a suspension.
		gw.dropIfIdle(u)
	}
}

// start launches the slot's current submission. It returns true when the
// slot keeps its lock (a worker is running or the transfer parked) and false
// when the submission completed synchronously, in which case current has
// been cleared.
func (gw *TxGateway) start(u *userSlot) bool {
	s := u.current
	switch s.kind {
	case ReqBalance:
		user, err := gw.users.Get(s.user)
		if err != nil {
			gw.reply(s, Reply{Err: ErrUserNotFound})
		} else {
			gw.reply(s, Reply{Balance: user.Balance(s.currency)})
		}
		u.current, u.running, u.waitFor = nil, false, ""
		return false

	case ReqSend:
		return gw.startSend(u)

	default: // deposit, withdraw
		if !gw.users.Exists(s.user) {
			gw.reply(s, Reply{Err: ErrUserNotFound})
			u.current, u.running, u.waitFor = nil, false, ""
			return false
		}
		gw.spawn(s)
		return true
	}
}

// startSend runs, parks or synchronously rejects the sender slot's current
// transfer. The two-account lock is both-or-neither: either the receiver is
// captured together with the sender in this one coordinator step, or the
// transfer parks on the sender without touching the receiver's admission
// budget.
func (gw *TxGateway) startSend(u *userSlot) bool {
	s := u.current
	if !gw.users.Exists(s.user) {
		gw.reply(s, Reply{Err: ErrSenderNotFound})
		u.current, u.running, u.waitFor = nil, false, ""
		return false
	}
	if !gw.users.Exists(s.to) {
		gw.reply(s, Reply{Err: ErrReceiverNotFound})
		u.current, u.running, u.waitFor = nil, false, ""
		return false
	}
	r := gw.slot(s.to)
	if !r.locked() {
		r.inbound++
		u.running, u.waitFor = true, ""
		gw.spawn(s)
		return true
	}
	// Receiver busy. If every hop of the waits-for chain from the receiver
	// back to this sender is a parked, worker-free slot, parking here would
	// close a cycle nothing can unwind; run the transfer against the
	// provably idle receiver instead.
	if r.inbound == 0 && gw.closesCycle(s.user, s.to) {
		forceMeter.Inc(1)
		log.Debug("Force-running cycle-closing transfer", "from", s.user, "to", s.to)
		r.inbound++
		u.running, u.waitFor = true, ""
		gw.spawn(s)
		return true
	}
	parkMeter.Inc(1)
	u.running, u.waitFor = false, s.to
	r.watchers = append(r.watchers, s.user)
	return true
}

// closesCycle walks waitFor links from the receiver through parked,
// worker-free slots. Reaching the sender means the new park would complete a
// waits-for cycle; reaching any live slot means a worker will eventually
// unwind the chain.
func (gw *TxGateway) closesCycle(from, to string) bool {
	seen := make(map[string]bool)
	for name := to; ; {
		if name == from {
			return true
		}
		if seen[name] {
			return false
		}
		seen[name] = true

		sl := gw.slots[name]
		if sl == nil || !sl.parked() || sl.inbound > 0 {
			return false
		}
		name = sl.waitFor
	}
}

// spawn hands the submission to a fresh worker goroutine and registers the
// waiter under the worker's handle.
func (gw *TxGateway) spawn(s *submission) {
	gw.handles++
	handle := gw.handles
	gw.inflight[handle] = s

	w := &txWorker{
		handle:   handle,
		kind:     s.kind,
		user:     s.user,
		to:       s.to,
		currency: s.currency,
		amount:   s.amount,
		users:    gw.users,
		txs:      gw.txs,
		mux:      gw.mux,
		log:      log.New("worker", handle),
	}
	gw.wg.Add(1)
	go w.run(&gw.wg)

	log.Trace("Spawned transaction worker", "handle", handle, "kind", s.kind, "user", s.user)
}

// finish reconciles a committed worker with its blocked caller and releases
// the locks the transaction held.
func (gw *TxGateway) finish(ev TxFinishedEvent) {
	s, ok := gw.inflight[ev.Handle]
	if !ok {
		log.Warn("Completion for unknown worker", "handle", ev.Handle)
		return
	}
	delete(gw.inflight, ev.Handle)

	finishMeter.Inc(1)
	gw.reply(s, Reply{Balance: ev.Balance, ToBalance: ev.ToBalance})

	// Release the receiver before advancing the sender, so a follow-up
	// transfer to the same receiver popped from the sender's queue sees it
	// free within this same step.
	if s.kind == ReqSend {
		gw.releaseInbound(s.to)
	}
	gw.advance(gw.slots[s.user])
}

// fail reconciles a failed worker. Funds shortage reaches the caller as-is;
// everything else collapses to ErrUnexpected.
func (gw *TxGateway) fail(ev TxFailedEvent) {
	s, ok := gw.inflight[ev.Handle]
	if !ok {
		log.Warn("Failure for unknown worker", "handle", ev.Handle, "err", ev.Err)
		return
	}
	delete(gw.inflight, ev.Handle)

	failMeter.Inc(1)
	err := ErrUnexpected
	if errors.Is(ev.Err, ErrNotEnoughFunds) {
		err = ErrNotEnoughFunds
	}
	gw.reply(s, Reply{Err: err})

	if s.kind == ReqSend {
		gw.releaseInbound(s.to)
	}
	gw.advance(gw.slots[s.user])
}

// advance retires the slot's current operation and starts the next queued
// one. The loop is iterative: queue heads that complete synchronously
// (balance reads, vanished users) are drained in place, bounded by the
// pending cap.
func (gw *TxGateway) advance(u *userSlot) {
	if u == nil {
		return
	}
	u.current, u.running, u.waitFor = nil, false, ""
	for u.queue.Len() > 0 {
		u.current = u.queue.PopFront()
		if gw.start(u) {
			return
		}
	}
	gw.unlocked(u)
}

// unlocked runs when a slot dropped its own lock: if no inbound transfer
// still holds it, every parked sender watching this user gets its retry and
// the slot is dropped once idle.
func (gw *TxGateway) unlocked(u *userSlot) {
	if u.inbound > 0 {
		return
	}
	watchers := u.watchers
	u.watchers = nil
	for _, name := range watchers {
		gw.retryParked(name)
	}
	gw.dropIfIdle(u)
}

// retryParked re-runs a parked transfer after its receiver (or the sender's
// own inbound hold) freed. Stale watcher entries are ignored: the slot may
// have advanced, started running or been dropped since registration.
func (gw *TxGateway) retryParked(name string) {
	sl := gw.slots[name]
	if sl == nil || !sl.parked() || sl.waitFor == "" {
		return
	}
	sl.waitFor = ""
	if !gw.startSend(sl) {
		// The retry failed synchronously (an endpoint vanished); current is
		// cleared, move the sender along.
		gw.advance(sl)
	}
}

// releaseInbound drops one inbound hold from the receiver of a completed
// transfer. At zero holds the slot either resumes its own parked transfer,
// drains work it queued while locked, or frees up entirely.
func (gw *TxGateway) releaseInbound(name string) {
	r := gw.slots[name]
	if r == nil || r.inbound == 0 {
		log.Warn("Inbound release for unheld slot", "user", name)
		return
	}
	r.inbound--
	if r.inbound > 0 {
		return
	}
	switch {
	case r.current == nil:
		gw.advance(r)
	case r.parked():
		gw.retryParked(r.name)
	}
	// A running current needs nothing; its completion advances the slot.
}

// shutdown answers every parked, queued and inflight caller with
// ErrGatewayStopped and clears the slot table. Running workers finish on
// their own; their completion events find no subscriber.
func (gw *TxGateway) shutdown() {
	for handle, s := range gw.inflight {
		delete(gw.inflight, handle)
		gw.reply(s, Reply{Err: ErrGatewayStopped})
	}
	for _, u := range gw.slots {
		if u.parked() {
			gw.reply(u.current, Reply{Err: ErrGatewayStopped})
		}
		for u.queue.Len() > 0 {
			gw.reply(u.queue.PopFront(), Reply{Err: ErrGatewayStopped})
		}
	}
	gw.slots = make(map[string]*userSlot)

	log.Debug("Gateway loop terminated")
}

// stats must run in the loop.
func (gw *TxGateway) stats() GatewayStats {
	s := GatewayStats{Slots: len(gw.slots), Inflight: len(gw.inflight)}
	for _, u := range gw.slots {
		if u.locked() {
			s.Locked++
		}
		if u.parked() {
			s.Parked++
		}
		s.Queued += u.queue.Len()
	}
	return s
}

// status must run in the loop.
func (gw *TxGateway) status(name string) SlotStatus {
	u := gw.slots[name]
	if u == nil {
		return SlotStatus{}
	}
	return SlotStatus{
		Locked:  u.locked(),
		Running: u.running,
		Parked:  u.parked(),
		Inbound: u.inbound,
		Pending: u.pending(),
		Queued:  u.queue.Len(),
	}
}
