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

import "errors"

// The public error set. Every failure a client can observe maps onto exactly
// one of these values; compare with errors.Is.
var (
	// ErrWrongArguments is returned for malformed input: empty names, a
	// non-positive or non-finite amount, or a self-transfer.
	ErrWrongArguments = errors.New("wrong arguments")

	// ErrUserAlreadyExists is returned when creating a taken account name.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrUserNotFound is returned when the operation's subject account does
	// not exist.
	ErrUserNotFound = errors.New("user does not exist")

	// ErrSenderNotFound is returned for a transfer whose debit side is an
	// unknown account.
	ErrSenderNotFound = errors.New("sender does not exist")

	// ErrReceiverNotFound is returned for a transfer whose credit side is an
	// unknown account.
	ErrReceiverNotFound = errors.New("receiver does not exist")

	// ErrNotEnoughFunds is returned when a debit exceeds the stored balance.
	ErrNotEnoughFunds = errors.New("not enough funds")

	// ErrTooManyRequests is returned when an account's admission queue is at
	// capacity. The request was not enqueued and had no effect.
	ErrTooManyRequests = errors.New("too many requests to user")

	// ErrUnexpected is returned for any worker failure that is not a funds
	// shortage, including balance writes that failed after a revert.
	ErrUnexpected = errors.New("unexpected failure")

	// ErrGatewayStopped is returned for submissions against a gateway that
	// was shut down.
	ErrGatewayStopped = errors.New("gateway stopped")
)
