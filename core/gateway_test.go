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
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tellerd/tellerd/core/ledger"
	"github.com/tellerd/tellerd/core/state"
	"github.com/tellerd/tellerd/event"
)

// gatedUserDB blocks every balance write until the gate opens. The gateway
// loop itself never writes balances, so gating Update holds exactly the
// workers while admission keeps running — the tool for deterministic
// queue-pressure tests.
type gatedUserDB struct {
	*state.UserDB
	gate chan struct{}
}

func (db *gatedUserDB) Update(name string, balances map[string]int64) error {
	<-db.gate
	return db.UserDB.Update(name, balances)
}

type gatewayHarness struct {
	users   *state.UserDB
	txs     *ledger.Store
	mux     *event.TypeMux
	gateway *TxGateway
	gate    chan struct{}
}

// newHarness builds a running gateway over fresh stores. With gating on,
// every worker blocks in its first balance write until openGate.
func newHarness(t *testing.T, gated bool) *gatewayHarness {
	t.Helper()

	h := &gatewayHarness{
		users: state.NewUserDB(),
		txs:   ledger.New(),
		mux:   new(event.TypeMux),
		gate:  make(chan struct{}),
	}
	var store UserStore = h.users
	if gated {
		store = &gatedUserDB{UserDB: h.users, gate: h.gate}
	} else {
		close(h.gate)
	}
	h.gateway = NewTxGateway(DefaultGatewayConfig, store, h.txs, h.mux)
	t.Cleanup(func() {
		h.openGate()
		h.gateway.Stop()
		h.mux.Stop()
	})
	return h
}

func (h *gatewayHarness) openGate() {
	select {
	case <-h.gate:
	default:
		close(h.gate)
	}
}

func (h *gatewayHarness) seed(t *testing.T, name string, usd int64) {
	t.Helper()
	require.NoError(t, h.users.Create(name))
	if usd != 0 {
		require.NoError(t, h.users.Update(name, map[string]int64{"usd": usd}))
	}
}

// waitUntil polls a condition that depends on asynchronous worker or loop
// progress.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for deadline := time.Now().Add(5 * time.Second); time.Now().Before(deadline); {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestGatewayDeposit(t *testing.T) {
	h := newHarness(t, false)
	h.seed(t, "alice", 0)

	balance, err := h.gateway.Deposit("alice", "usd", 3298)
	require.NoError(t, err)
	require.Equal(t, int64(3298), balance)

	balance, err = h.gateway.Balance("alice", "usd")
	require.NoError(t, err)
	require.Equal(t, int64(3298), balance)

	// Currencies never touched read as zero.
	balance, err = h.gateway.Balance("alice", "eur")
	require.NoError(t, err)
	require.Equal(t, int64(0), balance)
}

func TestGatewayUnknownUser(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.gateway.Deposit("ghost", "usd", 100)
	require.ErrorIs(t, err, ErrUserNotFound)
	_, err = h.gateway.Withdraw("ghost", "usd", 100)
	require.ErrorIs(t, err, ErrUserNotFound)
	_, err = h.gateway.Balance("ghost", "usd")
	require.ErrorIs(t, err, ErrUserNotFound)

	// Rejected lookups must leave no slot behind.
	require.Equal(t, 0, h.gateway.Stats().Slots)
}

func TestGatewayWithdraw(t *testing.T) {
	h := newHarness(t, false)
	h.seed(t, "dave", 1000)

	_, err := h.gateway.Withdraw("dave", "usd", 1100)
	require.ErrorIs(t, err, ErrNotEnoughFunds)

	// Shortage in a currency the user never held.
	_, err = h.gateway.Withdraw("dave", "brl", 100)
	require.ErrorIs(t, err, ErrNotEnoughFunds)

	balance, err := h.gateway.Withdraw("dave", "usd", 1000)
	require.NoError(t, err)
	require.Equal(t, int64(0), balance)
}

func TestGatewayDepositWithdrawRoundTrip(t *testing.T) {
	h := newHarness(t, false)
	h.seed(t, "alice", 4242)

	_, err := h.gateway.Deposit("alice", "usd", 5555)
	require.NoError(t, err)
	_, err = h.gateway.Withdraw("alice", "usd", 5555)
	require.NoError(t, err)

	balance, err := h.gateway.Balance("alice", "usd")
	require.NoError(t, err)
	require.Equal(t, int64(4242), balance)
}

func TestGatewaySend(t *testing.T) {
	h := newHarness(t, false)
	h.seed(t, "bob", 1000)
	h.seed(t, "carol", 0)

	from, to, err := h.gateway.Send("bob", "carol", "usd", 1000)
	require.NoError(t, err)
	require.Equal(t, int64(0), from)
	require.Equal(t, int64(1000), to)

	balance, err := h.gateway.Balance("carol", "usd")
	require.NoError(t, err)
	require.Equal(t, int64(1000), balance)

	_, _, err = h.gateway.Send("bob", "carol", "usd", 1)
	require.ErrorIs(t, err, ErrNotEnoughFunds)
}

func TestGatewaySendLookupErrors(t *testing.T) {
	h := newHarness(t, false)
	h.seed(t, "alice", 1000)

	_, _, err := h.gateway.Send("ghost", "alice", "usd", 100)
	require.ErrorIs(t, err, ErrSenderNotFound)
	_, _, err = h.gateway.Send("alice", "ghost", "usd", 100)
	require.ErrorIs(t, err, ErrReceiverNotFound)
	_, _, err = h.gateway.Send("alice", "alice", "usd", 100)
	require.ErrorIs(t, err, ErrWrongArguments)

	require.Equal(t, 0, h.gateway.Stats().Slots)
}

func TestGatewayArgumentChecks(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.gateway.Deposit("", "usd", 100)
	require.ErrorIs(t, err, ErrWrongArguments)
	_, err = h.gateway.Deposit("alice", "", 100)
	require.ErrorIs(t, err, ErrWrongArguments)
	_, err = h.gateway.Deposit("alice", "usd", 0)
	require.ErrorIs(t, err, ErrWrongArguments)
	_, err = h.gateway.Withdraw("alice", "usd", -5)
	require.ErrorIs(t, err, ErrWrongArguments)
	_, err = h.gateway.Balance("", "usd")
	require.ErrorIs(t, err, ErrWrongArguments)
}

// One running plus nine queued operations fill a user's admission budget;
// the eleventh concurrent request bounces.
func TestGatewayQueueLimit(t *testing.T) {
	h := newHarness(t, true)
	h.seed(t, "alice", 0)

	results := make(chan error, 11)
	for i := 0; i < 11; i++ {
		go func() {
			_, err := h.gateway.Deposit("alice", "usd", 100)
			results <- err
		}()
	}
	// Exactly one rejection arrives while the workers are gated.
	var rejected int
	select {
	case err := <-results:
		require.ErrorIs(t, err, ErrTooManyRequests)
		rejected++
	case <-time.After(5 * time.Second):
		t.Fatal("no rejection within 5s")
	}
	waitUntil(t, "full admission queue", func() bool {
		return h.gateway.Status("alice").Pending == DefaultGatewayConfig.MaxPending
	})

	h.openGate()
	for i := 0; i < 10; i++ {
		require.NoError(t, <-results)
	}
	require.Equal(t, 1, rejected)

	balance, err := h.gateway.Balance("alice", "usd")
	require.NoError(t, err)
	require.Equal(t, int64(1000), balance)
}

// The deterministic rendition of the 101-deposit burst: with the first
// worker held on the gate, exactly ten requests are admitted and the other
// ninety-one rejected; the burst drains cleanly once the gate opens.
func TestGatewayBurst(t *testing.T) {
	h := newHarness(t, true)
	h.seed(t, "u", 0)

	const total = 101
	results := make(chan error, total)
	for i := 0; i < total; i++ {
		go func() {
			_, err := h.gateway.Deposit("u", "usd", 1000)
			results <- err
		}()
	}
	for i := 0; i < total-10; i++ {
		require.ErrorIs(t, <-results, ErrTooManyRequests)
	}
	h.openGate()
	for i := 0; i < 10; i++ {
		require.NoError(t, <-results)
	}

	// The burst has drained; the next deposit sails through.
	balance, err := h.gateway.Deposit("u", "usd", 1000)
	require.NoError(t, err)
	require.Equal(t, int64(11000), balance)
	require.Equal(t, 0, h.gateway.Stats().Slots)
}

// Queued operations run in arrival order: a withdrawal that only the
// preceding deposit can fund must find the money there.
func TestGatewayPerUserFIFO(t *testing.T) {
	h := newHarness(t, true)
	h.seed(t, "alice", 0)

	results := make(chan error, 3)
	deposit := func(amount int64) {
		_, err := h.gateway.Deposit("alice", "usd", amount)
		results <- err
	}
	go deposit(500)
	waitUntil(t, "first deposit admitted", func() bool {
		return h.gateway.Status("alice").Running
	})
	go func() {
		_, err := h.gateway.Withdraw("alice", "usd", 300)
		results <- err
	}()
	waitUntil(t, "withdrawal queued", func() bool {
		return h.gateway.Status("alice").Queued == 1
	})
	go deposit(100)
	waitUntil(t, "second deposit queued", func() bool {
		return h.gateway.Status("alice").Queued == 2
	})

	h.openGate()
	for i := 0; i < 3; i++ {
		require.NoError(t, <-results)
	}
	balance, err := h.gateway.Balance("alice", "usd")
	require.NoError(t, err)
	require.Equal(t, int64(300), balance)
}

// A transfer to a busy receiver parks on the sender and resumes when the
// receiver frees; no admission budget of the receiver is consumed.
func TestGatewaySendParksOnBusyReceiver(t *testing.T) {
	h := newHarness(t, true)
	h.seed(t, "alice", 1000)
	h.seed(t, "bob", 0)

	results := make(chan error, 2)
	go func() {
		_, err := h.gateway.Deposit("bob", "usd", 100)
		results <- err
	}()
	waitUntil(t, "receiver busy", func() bool {
		return h.gateway.Status("bob").Running
	})

	go func() {
		_, _, err := h.gateway.Send("alice", "bob", "usd", 400)
		results <- err
	}()
	waitUntil(t, "transfer parked", func() bool {
		return h.gateway.Status("alice").Parked
	})
	require.Equal(t, 1, h.gateway.Status("alice").Pending)
	require.Equal(t, 1, h.gateway.Status("bob").Pending, "inbound transfer must not charge the receiver")

	h.openGate()
	require.NoError(t, <-results)
	require.NoError(t, <-results)

	balance, err := h.gateway.Balance("bob", "usd")
	require.NoError(t, err)
	require.Equal(t, int64(500), balance)
	balance, err = h.gateway.Balance("alice", "usd")
	require.NoError(t, err)
	require.Equal(t, int64(600), balance)
}

// A receiver held by a long-running inbound transfer still has its full own
// admission budget.
func TestGatewayReceiverNotRateLimited(t *testing.T) {
	h := newHarness(t, true)
	h.seed(t, "alice", 1000)
	h.seed(t, "bob", 0)

	sendRes := make(chan error, 1)
	go func() {
		_, _, err := h.gateway.Send("alice", "bob", "usd", 400)
		sendRes <- err
	}()
	waitUntil(t, "transfer running", func() bool {
		return h.gateway.Status("bob").Inbound == 1
	})

	// All ten of bob's own deposits are accepted while the inbound transfer
	// holds him; the eleventh bounces.
	results := make(chan error, 11)
	for i := 0; i < 11; i++ {
		go func() {
			_, err := h.gateway.Deposit("bob", "usd", 100)
			results <- err
		}()
	}
	require.ErrorIs(t, <-results, ErrTooManyRequests)
	waitUntil(t, "receiver queue full", func() bool {
		return h.gateway.Status("bob").Pending == DefaultGatewayConfig.MaxPending
	})

	h.openGate()
	require.NoError(t, <-sendRes)
	for i := 0; i < 10; i++ {
		require.NoError(t, <-results)
	}
	balance, err := h.gateway.Balance("bob", "usd")
	require.NoError(t, err)
	require.Equal(t, int64(1400), balance)
}

// Mutual transfers that close a waits-for cycle are broken by force-running
// the closing transfer; both complete and the money lands exactly right.
func TestGatewayTransferCycle(t *testing.T) {
	h := newHarness(t, true)
	h.seed(t, "alice", 1000)
	h.seed(t, "bob", 2000)

	results := make(chan error, 3)
	go func() {
		_, err := h.gateway.Deposit("bob", "usd", 100)
		results <- err
	}()
	waitUntil(t, "bob busy", func() bool {
		return h.gateway.Status("bob").Running
	})

	go func() {
		_, _, err := h.gateway.Send("alice", "bob", "usd", 300)
		results <- err
	}()
	waitUntil(t, "alice parked on bob", func() bool {
		return h.gateway.Status("alice").Parked
	})

	// bob's counter-transfer queues behind his running deposit; when it
	// surfaces, alice is parked on bob and parking bob on alice would close
	// the cycle.
	go func() {
		_, _, err := h.gateway.Send("bob", "alice", "usd", 700)
		results <- err
	}()
	waitUntil(t, "counter-transfer queued", func() bool {
		return h.gateway.Status("bob").Queued == 1
	})

	h.openGate()
	for i := 0; i < 3; i++ {
		require.NoError(t, <-results)
	}

	balance, err := h.gateway.Balance("alice", "usd")
	require.NoError(t, err)
	require.Equal(t, int64(1000-300+700), balance)
	balance, err = h.gateway.Balance("bob", "usd")
	require.NoError(t, err)
	require.Equal(t, int64(2000+100+300-700), balance)
	require.Equal(t, 0, h.gateway.Stats().Slots)
}

// Random concurrent transfers conserve the total supply to the cent.
func TestGatewayConservation(t *testing.T) {
	h := newHarness(t, false)

	const (
		accounts  = 8
		seed      = int64(10000)
		clients   = 16
		transfers = 50
	)
	names := make([]string, accounts)
	for i := range names {
		names[i] = string(rune('a' + i))
		h.seed(t, names[i], seed)
	}
	var wg sync.WaitGroup
	for c := 0; c < clients; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(c)))
			for i := 0; i < transfers; i++ {
				from := r.Intn(accounts)
				to := (from + 1 + r.Intn(accounts-1)) % accounts
				amount := int64(r.Intn(500) + 1)
				_, _, err := h.gateway.Send(names[from], names[to], "usd", amount)
				switch err {
				case nil, ErrNotEnoughFunds, ErrTooManyRequests:
				default:
					t.Errorf("transfer failed unexpectedly: %v", err)
				}
			}
		}(c)
	}
	wg.Wait()

	var total int64
	for _, name := range names {
		balance, err := h.gateway.Balance(name, "usd")
		require.NoError(t, err)
		require.GreaterOrEqual(t, balance, int64(0))
		total += balance
	}
	require.Equal(t, seed*accounts, total)
	require.Equal(t, 0, h.gateway.Stats().Slots, "all slots must drain")
}

func TestGatewayStop(t *testing.T) {
	defer goleak.VerifyNone(t,
		// The go-metrics meter arbiter runs for the process lifetime.
		goleak.IgnoreTopFunction("github.com/rcrowley/go-metrics.(*meterArbiter).tick"),
	)

	users, txs, mux := state.NewUserDB(), ledger.New(), new(event.TypeMux)
	require.NoError(t, users.Create("alice"))

	gw := NewTxGateway(DefaultGatewayConfig, users, txs, mux)
	_, err := gw.Deposit("alice", "usd", 100)
	require.NoError(t, err)

	gw.Stop()
	mux.Stop()

	_, err = gw.Deposit("alice", "usd", 100)
	require.ErrorIs(t, err, ErrGatewayStopped)
	require.Equal(t, GatewayStats{}, gw.Stats())
}

// Callers blocked behind a gated worker are answered with ErrGatewayStopped
// when the gateway shuts down mid-flight.
func TestGatewayStopAnswersBlockedCallers(t *testing.T) {
	users, txs, mux := state.NewUserDB(), ledger.New(), new(event.TypeMux)
	require.NoError(t, users.Create("alice"))

	gate := make(chan struct{})
	gw := NewTxGateway(DefaultGatewayConfig, &gatedUserDB{UserDB: users, gate: gate}, txs, mux)

	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := gw.Deposit("alice", "usd", 100)
			results <- err
		}()
	}
	stopped := make(chan struct{})
	go func() {
		gw.Stop()
		close(stopped)
	}()
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, <-results, ErrGatewayStopped)
	}
	close(gate)
	<-stopped
	mux.Stop()
}
