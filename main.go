package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MJE43/blackjack-policy/internal/config"
	"github.com/MJE43/blackjack-policy/internal/logging"
)

const usage = `usage: blackjack-policy <command> [flags] [args]

commands:
  dealer     compute, validate and save the dealer outcome table
  solve      solve the stored dealer table and save the policy
  show       print the latest stored table (show dealer|policy)
  simulate   replay the solved policy over seeded hands
  serve      serve stored tables over HTTP
  runs       list stored runs (runs [dealer|policy])
  seeds      keep seed pairs in the OS keychain (seeds save|show|delete <profile>)

Flags may come before or after the command's arguments; every flag can
also be set with a BJPOLICY_* environment variable.
Run "blackjack-policy <command> -h" for the flags.
`

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "help" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd := os.Args[1]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	cfg, err := config.ParseConfig(fs, os.Args[2:])
	if err != nil {
		config.Exitf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		config.Exitf("config: %v", err)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		config.Exitf("logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cmd, cfg.Args, cfg, log, os.Stdout); err != nil {
		if errors.Is(err, errUnknownCommand) {
			fmt.Fprint(os.Stderr, usage)
		}
		stop()
		config.Exitf("%s: %v", cmd, err)
	}
}
