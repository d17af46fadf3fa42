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

// tellerd is the command line interface to the in-memory banking core.
package main

import (
	"fmt"
	"os"
	"runtime"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/tellerd/tellerd/log"

	// Align GOMAXPROCS with the container CPU quota.
	_ "go.uber.org/automaxprocs"
)

const clientIdentifier = "tellerd"

// Version of the tellerd binary (set via linker flags on release builds).
var version = "0.1.0-unstable"

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value: 3,
	}
	logFileFlag = &cli.StringFlag{
		Name:  "logfile",
		Usage: "Duplicate logs into a size-rotated JSON file",
	}
	noColorFlag = &cli.BoolFlag{
		Name:  "nocolor",
		Usage: "Disable ANSI coloring of terminal output",
	}
)

var app = &cli.App{
	Name:      clientIdentifier,
	Usage:     "the in-memory banking core command line interface",
	Version:   version,
	Copyright: "Copyright 2025 The tellerd Authors",
	Flags: []cli.Flag{
		configFileFlag,
		verbosityFlag,
		logFileFlag,
		noColorFlag,
	},
	Action: runConsole, // bare invocation drops into the console
}

func init() {
	app.Commands = []*cli.Command{
		// See consolecmd.go:
		consoleCommand,
		// See stresscmd.go:
		stressCommand,
		versionCommand,
	}
	sort.Sort(cli.CommandsByName(app.Commands))

	app.Before = func(ctx *cli.Context) error {
		return log.Setup(log.Config{
			Verbosity: ctx.Int(verbosityFlag.Name),
			File:      ctx.String(logFileFlag.Name),
			NoColor:   ctx.Bool(noColorFlag.Name),
		})
	}
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "Print version numbers",
	Action: func(ctx *cli.Context) error {
		fmt.Println(clientIdentifier)
		fmt.Println("Version:", version)
		fmt.Println("Go Version:", runtime.Version())
		fmt.Println("Architecture:", runtime.GOARCH)
		fmt.Println("Operating System:", runtime.GOOS)
		return nil
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
