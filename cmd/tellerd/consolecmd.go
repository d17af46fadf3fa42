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
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/peterh/liner"
	"github.com/urfave/cli/v2"

	"github.com/tellerd/tellerd/bank"
	"github.com/tellerd/tellerd/log"
)

var consoleCommand = &cli.Command{
	Name:   "console",
	Usage:  "Start an interactive banking console",
	Action: runConsole,
	Description: `
The console drives a fresh in-memory bank interactively. Type "help" for the
available commands. All state is lost on exit.`,
}

const consoleHelp = `Commands:
  new <user>                            create an account
  deposit <user> <amount> <currency>    credit an account
  withdraw <user> <amount> <currency>   debit an account
  send <from> <to> <amount> <currency>  move money between accounts
  balance <user> <currency>             read one balance
  txs <user>                            list an account's transactions
  stats                                 show gateway statistics
  help                                  show this help
  exit                                  leave the console`

var consoleCommands = []string{
	"new", "deposit", "withdraw", "send", "balance", "txs", "stats", "help", "exit",
}

func runConsole(ctx *cli.Context) error {
	cfg, nodeCfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	if err := log.Setup(log.Config{Verbosity: nodeCfg.LogVerbosity, File: nodeCfg.LogFile, NoColor: nodeCfg.NoColor}); err != nil {
		return err
	}
	b := bank.New(&cfg)
	defer b.Stop()

	if !liner.TerminalSupported() {
		return runScripted(b, ctx.App.Reader)
	}
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) (res []string) {
		for _, cmd := range consoleCommands {
			if strings.HasPrefix(cmd, prefix) {
				res = append(res, cmd)
			}
		}
		return res
	})

	fmt.Println("Welcome to the tellerd console! Type \"help\" for commands.")
	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				return nil
			}
			return err
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)
		if done := dispatch(b, input); done {
			return nil
		}
	}
}

// runScripted serves piped input without terminal handling.
func runScripted(b *bank.Bank, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if dispatch(b, input) {
			return nil
		}
	}
	return scanner.Err()
}

// dispatch executes one console line. It returns true when the console
// should exit.
func dispatch(b *bank.Bank, input string) bool {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	fail := color.New(color.FgRed).PrintfFunc()
	api := b.API()

	switch cmd {
	case "exit", "quit":
		return true

	case "help":
		fmt.Println(consoleHelp)

	case "new":
		if len(args) != 1 {
			fail("usage: new <user>\n")
			break
		}
		if err := api.CreateUser(args[0]); err != nil {
			fail("error: %v\n", err)
			break
		}
		fmt.Printf("account %q created\n", args[0])

	case "deposit", "withdraw":
		if len(args) != 3 {
			fail("usage: %s <user> <amount> <currency>\n", cmd)
			break
		}
		amount, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			fail("bad amount: %v\n", err)
			break
		}
		var balance float64
		if cmd == "deposit" {
			balance, err = api.Deposit(args[0], amount, args[2])
		} else {
			balance, err = api.Withdraw(args[0], amount, args[2])
		}
		if err != nil {
			fail("error: %v\n", err)
			break
		}
		fmt.Printf("%s %s: %.2f\n", args[0], args[2], balance)

	case "send":
		if len(args) != 4 {
			fail("usage: send <from> <to> <amount> <currency>\n")
			break
		}
		amount, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			fail("bad amount: %v\n", err)
			break
		}
		fromBalance, toBalance, err := api.Send(args[0], args[1], amount, args[3])
		if err != nil {
			fail("error: %v\n", err)
			break
		}
		fmt.Printf("%s %s: %.2f, %s %s: %.2f\n", args[0], args[3], fromBalance, args[1], args[3], toBalance)

	case "balance":
		if len(args) != 2 {
			fail("usage: balance <user> <currency>\n")
			break
		}
		balance, err := api.GetBalance(args[0], args[1])
		if err != nil {
			fail("error: %v\n", err)
			break
		}
		fmt.Printf("%s %s: %.2f\n", args[0], args[1], balance)

	case "txs":
		if len(args) != 1 {
			fail("usage: txs <user>\n")
			break
		}
		txs, err := api.Transactions(args[0])
		if err != nil {
			fail("error: %v\n", err)
			break
		}
		for _, tx := range txs {
			fmt.Printf("%s %-8s %s\n", tx.ID, tx.Type, tx.Status)
			for _, op := range tx.Operations {
				fmt.Printf("    %-6s %s %s %.2f -> %.2f (%s)\n",
					op.Direction, op.User, op.Currency,
					float64(op.Amount)/100, float64(op.PostBalance)/100, op.Status)
			}
		}
		if len(txs) == 0 {
			fmt.Println("no transactions")
		}

	case "stats":
		s := b.Gateway().Stats()
		fmt.Printf("users: %d  slots: %d  locked: %d  parked: %d  queued: %d  inflight: %d\n",
			b.UserDB().Count(), s.Slots, s.Locked, s.Parked, s.Queued, s.Inflight)

	default:
		fail("unknown command %q, type \"help\"\n", cmd)
	}
	return false
}
