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
	"time"

	"github.com/tellerd/tellerd/log"
)

// GatewayConfig are the admission parameters of the transaction gateway.
type GatewayConfig struct {
	// MaxPending caps how many of one user's requests may be admitted but
	// not yet finished: the running one plus everything queued behind it.
	MaxPending int

	// ReportInterval is how often the gateway loop logs slot statistics.
	ReportInterval time.Duration
}

// DefaultGatewayConfig contains the default configuration of the gateway.
var DefaultGatewayConfig = GatewayConfig{
	MaxPending:     10,
	ReportInterval: time.Minute,
}

// sanitize checks the provided user configuration and changes anything that
// is unreasonable or unworkable.
func (config *GatewayConfig) sanitize() GatewayConfig {
	conf := *config
	if conf.MaxPending < 1 {
		log.Warn("Sanitizing invalid gateway pending cap", "provided", conf.MaxPending, "updated", DefaultGatewayConfig.MaxPending)
		conf.MaxPending = DefaultGatewayConfig.MaxPending
	}
	if conf.ReportInterval < time.Second {
		log.Warn("Sanitizing invalid gateway report interval", "provided", conf.ReportInterval, "updated", DefaultGatewayConfig.ReportInterval)
		conf.ReportInterval = DefaultGatewayConfig.ReportInterval
	}
	return conf
}
