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

package bank

import "github.com/tellerd/tellerd/core"

// Config collects the tunables of a bank service.
type Config struct {
	Gateway core.GatewayConfig
}

// DefaultConfig contains the default settings for use on a single node.
var DefaultConfig = Config{
	Gateway: core.DefaultGatewayConfig,
}
