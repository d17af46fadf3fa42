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
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// Amounts and balances travel through the core as int64 minor units, one
// hundredth of a currency unit. Floats exist only at the client boundary;
// ParseAmount and FormatAmount are the sole crossing points.

// MinorScale is the number of decimal places carried by a balance.
const MinorScale = 2

// ErrInvalidAmount marks a client amount that has no minor-unit
// representation: NaN, an infinity, or a value overflowing int64.
var ErrInvalidAmount = errors.New("invalid amount")

var minorFactor = decimal.New(1, MinorScale)

// ParseAmount converts a client-supplied amount into minor units. The value
// is rounded half-to-even at two decimals first, so 0.125 becomes 12 and
// 0.135 becomes 14. Sign is preserved; callers enforce positivity.
func ParseAmount(x float64) (int64, error) {
	// decimal.NewFromFloat panics on non-finite input.
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, ErrInvalidAmount
	}
	units := decimal.NewFromFloat(x).RoundBank(MinorScale).Mul(minorFactor).BigInt()
	if !units.IsInt64() {
		return 0, ErrInvalidAmount
	}
	return units.Int64(), nil
}

// FormatAmount renders minor units as the client-facing float with two
// decimal places.
func FormatAmount(n int64) float64 {
	return decimal.New(n, -MinorScale).InexactFloat64()
}
