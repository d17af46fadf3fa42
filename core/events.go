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

// TxFinishedEvent is posted by a worker whose transaction committed. Balance
// carries the initiating user's post balance; To and ToBalance are set for
// transfers only.
type TxFinishedEvent struct {
	Handle    uint64
	Kind      ReqKind
	User      string
	Balance   int64
	To        string
	ToBalance int64
}

// TxFailedEvent is posted by a worker whose transaction did not commit. Err
// is ErrNotEnoughFunds for a funds shortage; anything else reaches the caller
// as ErrUnexpected. Users lists every account the worker touched or meant to
// touch, for diagnostics.
type TxFailedEvent struct {
	Handle uint64
	Err    error
	Users  []string
}
