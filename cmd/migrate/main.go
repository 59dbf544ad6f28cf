// Command migrate applies the embedded schema migrations with goose.
//
//	migrate [-config path] <command> [args...]
//
// command is any goose command: up, down, status, version, redo, up-to N, down-to N.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"delivery-wallet-engine/config"
	pgStorage "delivery-wallet-engine/internal/adapter/storage/postgres"
	"delivery-wallet-engine/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: migrate [-config path] <up|down|status|version|redo|up-to|down-to> [args...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	command, args := flag.Arg(0), flag.Args()[1:]
	if err := pgStorage.Migrate(context.Background(), cfg.Database.DSN(), command, log, args...); err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("Migration failed")
	}
}
