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

// Package event implements the typed event multiplexer carrying worker
// outcomes to the transaction gateway.
package event

import (
	"errors"
	"reflect"
	"sync"
	"time"
)

// ErrMuxClosed is returned by Post after the mux was stopped.
var ErrMuxClosed = errors.New("event: mux closed")

// TypeMuxEvent is a time-tagged notification pushed to subscribers.
type TypeMuxEvent struct {
	Time time.Time
	Data interface{}
}

// A TypeMux dispatches events to registered receivers. Receivers subscribe
// by example value; every posted event whose concrete type matches one of
// the subscribed types is delivered. The zero value is ready to use.
type TypeMux struct {
	mutex   sync.RWMutex
	subm    map[reflect.Type][]*TypeMuxSubscription
	stopped bool
}

// Subscribe creates a subscription for events of the given types. The
// subscription's channel is closed when it is unsubscribed or the mux is
// stopped.
func (mux *TypeMux) Subscribe(types ...interface{}) *TypeMuxSubscription {
	sub := newsub(mux)
	mux.mutex.Lock()
	defer mux.mutex.Unlock()
	if mux.stopped {
		// Mark closed so Unsubscribe becomes a no-op and readers see EOF.
		sub.closed = true
		close(sub.postC)
		return sub
	}
	if mux.subm == nil {
		mux.subm = make(map[reflect.Type][]*TypeMuxSubscription)
	}
	for _, t := range types {
		rtyp := reflect.TypeOf(t)
		mux.subm[rtyp] = append(mux.subm[rtyp], sub)
	}
	return sub
}

// Post sends an event to all receivers registered for its concrete type.
// It blocks until every receiver accepted the event or went away, which is
// why workers post from their own goroutines and the gateway never posts
// from its loop.
func (mux *TypeMux) Post(ev interface{}) error {
	event := &TypeMuxEvent{Time: time.Now(), Data: ev}
	rtyp := reflect.TypeOf(ev)

	mux.mutex.RLock()
	if mux.stopped {
		mux.mutex.RUnlock()
		return ErrMuxClosed
	}
	subs := mux.subm[rtyp]
	mux.mutex.RUnlock()

	for _, sub := range subs {
		sub.deliver(event)
	}
	return nil
}

// Stop closes the mux. The mux can no longer be used; future Post calls fail
// with ErrMuxClosed, and all subscription channels are closed.
func (mux *TypeMux) Stop() {
	mux.mutex.Lock()
	defer mux.mutex.Unlock()
	for _, subs := range mux.subm {
		for _, sub := range subs {
			sub.closewait()
		}
	}
	mux.subm = nil
	mux.stopped = true
}

func (mux *TypeMux) del(s *TypeMuxSubscription) {
	mux.mutex.Lock()
	defer mux.mutex.Unlock()
	for rtyp, subs := range mux.subm {
		for i, sub := range subs {
			if sub != s {
				continue
			}
			if len(subs) == 1 {
				delete(mux.subm, rtyp)
			} else {
				mux.subm[rtyp] = append(subs[:i:i], subs[i+1:]...)
			}
			break
		}
	}
}

// TypeMuxSubscription is one receiver's attachment to a TypeMux.
type TypeMuxSubscription struct {
	mux     *TypeMux
	created time.Time

	closeMu sync.Mutex
	closing chan struct{}
	closed  bool

	// postC and readC are the two ends of the same channel. They are held
	// separately so the send side can be dropped on close without changing
	// what Chan returns.
	postMu sync.RWMutex
	postC  chan<- *TypeMuxEvent
	readC  <-chan *TypeMuxEvent
}

func newsub(mux *TypeMux) *TypeMuxSubscription {
	c := make(chan *TypeMuxEvent)
	return &TypeMuxSubscription{
		mux:     mux,
		created: time.Now(),
		closing: make(chan struct{}),
		postC:   c,
		readC:   c,
	}
}

// Chan returns the channel events are delivered on. It is closed when the
// subscription ends.
func (s *TypeMuxSubscription) Chan() <-chan *TypeMuxEvent {
	return s.readC
}

// Unsubscribe detaches from the mux and closes the event channel. It is safe
// to call more than once and while a Post is in flight.
func (s *TypeMuxSubscription) Unsubscribe() {
	s.mux.del(s)
	s.closewait()
}

// Closed reports whether the subscription was ended.
func (s *TypeMuxSubscription) Closed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

func (s *TypeMuxSubscription) closewait() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	// Unblock deliveries first, then retire the send side. A nil postC makes
	// late deliver calls fall through to the closing case instead of sending
	// on a closed channel.
	close(s.closing)
	s.closed = true

	s.postMu.Lock()
	defer s.postMu.Unlock()
	close(s.postC)
	s.postC = nil
}

func (s *TypeMuxSubscription) deliver(event *TypeMuxEvent) {
	// Events posted before this subscription existed are not replayed.
	if s.created.After(event.Time) {
		return
	}
	s.postMu.RLock()
	defer s.postMu.RUnlock()

	select {
	case s.postC <- event:
	case <-s.closing:
	}
}
