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
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/tellerd/tellerd/bank"
	"github.com/tellerd/tellerd/core"
	"github.com/tellerd/tellerd/log"
)

var (
	stressUsersFlag = &cli.IntFlag{
		Name:  "users",
		Usage: "Number of accounts to spread the workload over",
		Value: 10,
	}
	stressOpsFlag = &cli.IntFlag{
		Name:  "ops",
		Usage: "Total number of operations to fire",
		Value: 10000,
	}
	stressWorkersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "Number of concurrent client goroutines",
		Value: 32,
	}
)

var stressCommand = &cli.Command{
	Name:   "stress",
	Usage:  "Run a concurrent burst workload against a fresh bank",
	Flags:  []cli.Flag{stressUsersFlag, stressOpsFlag, stressWorkersFlag},
	Action: runStress,
	Description: `
Creates a set of accounts, seeds each with 1000.00 usd and fires a random mix
of deposits, withdrawals, transfers and balance reads at them concurrently.
Prints per-outcome totals and verifies that money was conserved.`,
}

func runStress(ctx *cli.Context) error {
	cfg, nodeCfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	if err := log.Setup(log.Config{Verbosity: nodeCfg.LogVerbosity, File: nodeCfg.LogFile, NoColor: nodeCfg.NoColor}); err != nil {
		return err
	}
	var (
		users   = ctx.Int(stressUsersFlag.Name)
		ops     = ctx.Int(stressOpsFlag.Name)
		workers = ctx.Int(stressWorkersFlag.Name)
	)
	if users < 2 || ops < 1 || workers < 1 {
		return errors.New("stress needs at least 2 users, 1 op and 1 worker")
	}
	b := bank.New(&cfg)
	defer b.Stop()
	api := b.API()

	const seed = 1000.00
	names := make([]string, users)
	for i := range names {
		names[i] = fmt.Sprintf("user-%03d", i)
		if err := api.CreateUser(names[i]); err != nil {
			return err
		}
		if _, err := api.Deposit(names[i], seed, "usd"); err != nil {
			return err
		}
	}

	// Deposits and withdrawals shift the total; track the committed ones so
	// the conservation check has an expected value. Transfers must not shift
	// it at all.
	var (
		deposited atomic.Int64 // minor units credited by committed deposits
		withdrawn atomic.Int64 // minor units debited by committed withdrawals
		outcomes  = map[string]*atomic.Int64{
			"deposit ok":  {}, "withdraw ok": {},
			"send ok": {}, "balance ok": {},
			"not enough funds": {}, "too many requests": {}, "other error": {},
		}
	)
	record := func(kind string, err error) {
		switch {
		case err == nil:
			outcomes[kind+" ok"].Add(1)
		case errors.Is(err, core.ErrNotEnoughFunds):
			outcomes["not enough funds"].Add(1)
		case errors.Is(err, core.ErrTooManyRequests):
			outcomes["too many requests"].Add(1)
		default:
			outcomes["other error"].Add(1)
		}
	}

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < ops; i++ {
		g.Go(func() error {
			var (
				ui     = rand.Intn(users)
				user   = names[ui]
				units  = int64(rand.Intn(2000) + 1)
				amount = float64(units) / 100
			)
			switch rand.Intn(4) {
			case 0:
				_, err := api.Deposit(user, amount, "usd")
				if err == nil {
					deposited.Add(units)
				}
				record("deposit", err)
			case 1:
				_, err := api.Withdraw(user, amount, "usd")
				if err == nil {
					withdrawn.Add(units)
				}
				record("withdraw", err)
			case 2:
				to := names[(ui+1+rand.Intn(users-1))%users]
				_, _, err := api.Send(user, to, amount, "usd")
				record("send", err)
			default:
				_, err := api.GetBalance(user, "usd")
				record("balance", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("ran %d operations over %d users with %d workers in %v\n\n", ops, users, workers, elapsed)
	keys := maps.Keys(outcomes)
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Printf("  %-18s %d\n", k, outcomes[k].Load())
	}

	// Conservation: final total == seeds + committed deposits − committed
	// withdrawals, to the cent.
	var total int64
	for _, name := range names {
		balance, err := api.GetBalance(name, "usd")
		if err != nil {
			return err
		}
		total += int64(balance*100 + 0.5)
	}
	expected := int64(users)*int64(seed*100) + deposited.Load() - withdrawn.Load()
	fmt.Printf("\nfinal total: %.2f usd, expected %.2f usd\n", float64(total)/100, float64(expected)/100)
	if total != expected {
		return fmt.Errorf("conservation violated: have %d, want %d minor units", total, expected)
	}
	fmt.Println("conservation check passed")
	return nil
}
