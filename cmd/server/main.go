// Package main is the entry point for the chronicle journaling API.
//
// main stays minimal. It reads configuration (flags, .env, environment),
// sets up logging, and hands everything to internal/server.
//
// USAGE:
//
//	chronicle-server [--env-file .env] [--port 8080] [--db data/chronicle.db] [--store sqlite|json]
//
// Flags win over environment variables, which win over the .env file.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/sakif/chronicle/internal/config"
	"github.com/sakif/chronicle/internal/logging"
	"github.com/sakif/chronicle/internal/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// flags holds the command-line overrides.
type flags struct {
	envFile string
	port    int
	dbPath  string
	store   string
}

func parseFlags(args []string) (*pflag.FlagSet, *flags, error) {
	var f flags
	fs := pflag.NewFlagSet("chronicle-server", pflag.ContinueOnError)
	fs.StringVar(&f.envFile, "env-file", ".env", "load environment variables from this file if it exists")
	fs.IntVarP(&f.port, "port", "p", 0, "listen port (overrides PORT)")
	fs.StringVar(&f.dbPath, "db", "", "database path (overrides CHRONICLE_DB_PATH)")
	fs.StringVar(&f.store, "store", "", "storage engine: sqlite or json (overrides STORE_DRIVER)")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() > 0 {
		return nil, nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return fs, &f, nil
}

// applyFlags copies the flags the user actually set onto cfg and
// re-validates it.
func applyFlags(cfg *config.Config, fs *pflag.FlagSet, f *flags) error {
	if fs.Changed("port") {
		cfg.Port = f.port
	}
	if fs.Changed("store") {
		cfg.StoreDriver = f.store
		if !fs.Changed("db") && os.Getenv("CHRONICLE_DB_PATH") == "" {
			// Let Validate pick the new driver's default path.
			cfg.DBPath = ""
		}
	}
	if fs.Changed("db") {
		cfg.DBPath = f.dbPath
	}
	return cfg.Validate()
}

func run(args []string) error {
	fs, f, err := parseFlags(args)
	if err != nil {
		return err
	}

	if err := config.LoadEnvFile(f.envFile); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := applyFlags(cfg, fs, f); err != nil {
		return err
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("OPENAI_API_KEY not set, /ai/chat will return the fallback reply")
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	// Start blocks until SIGINT/SIGTERM.
	return srv.Start()
}
