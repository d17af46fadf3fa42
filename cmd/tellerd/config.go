// Copyright 2025 The tellerd Authors
// This file is part of tellerd.
//
// tellerd is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// tellerd is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with tellerd. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"bufio"
	"os"
	"reflect"
	"time"
	"unicode"

	"github.com/naoina/toml"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/tellerd/tellerd/bank"
	"github.com/tellerd/tellerd/log"
)

// tellerdConfig is the full on-disk configuration: the bank's own tunables
// plus the node-level logging knobs the flags also cover.
type tellerdConfig struct {
	Gateway gatewayConfigTOML
	Node    nodeConfig
}

// gatewayConfigTOML mirrors core.GatewayConfig with TOML-friendly field
// types (the report interval is given in seconds).
type gatewayConfigTOML struct {
	MaxPending            int
	ReportIntervalSeconds int
}

type nodeConfig struct {
	LogVerbosity int
	LogFile      string
	NoColor      bool
}

// These settings ensure that TOML keys use the same names as Go struct
// fields, and that fields in the file missing from the struct warn instead
// of erroring out.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		if len(field) > 0 && unicode.IsUpper(rune(field[0])) {
			log.Warn("Config field not known, skipping", "section", rt.String(), "field", field)
			return nil
		}
		return errors.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

func loadConfigFile(path string, cfg *tellerdConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening config file")
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if err != nil {
		return errors.Wrapf(err, "decoding config file %s", path)
	}
	return nil
}

// makeConfig assembles the effective configuration: built-in defaults,
// overlaid by the TOML file if one is given, overlaid by explicit flags.
func makeConfig(ctx *cli.Context) (bank.Config, nodeConfig, error) {
	cfg := tellerdConfig{
		Gateway: gatewayConfigTOML{
			MaxPending:            bank.DefaultConfig.Gateway.MaxPending,
			ReportIntervalSeconds: int(bank.DefaultConfig.Gateway.ReportInterval.Seconds()),
		},
		Node: nodeConfig{
			LogVerbosity: verbosityFlag.Value,
		},
	}
	if path := ctx.String(configFileFlag.Name); path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return bank.Config{}, nodeConfig{}, err
		}
	}
	if ctx.IsSet(verbosityFlag.Name) {
		cfg.Node.LogVerbosity = ctx.Int(verbosityFlag.Name)
	}
	if ctx.IsSet(logFileFlag.Name) {
		cfg.Node.LogFile = ctx.String(logFileFlag.Name)
	}
	if ctx.IsSet(noColorFlag.Name) {
		cfg.Node.NoColor = ctx.Bool(noColorFlag.Name)
	}
	bankCfg := bank.DefaultConfig
	bankCfg.Gateway.MaxPending = cfg.Gateway.MaxPending
	if cfg.Gateway.ReportIntervalSeconds > 0 {
		bankCfg.Gateway.ReportInterval = time.Duration(cfg.Gateway.ReportIntervalSeconds) * time.Second
	}
	return bankCfg, cfg.Node, nil
}
