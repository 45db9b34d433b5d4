package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&serveCmd{}, "")
	commander.Register(&migrateCmd{}, "store")
	commander.Register(&seedCmd{}, "store")
	commander.Register(&backfillRiskCmd{}, "store")
	commander.Register(&createAdminCmd{}, "store")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
