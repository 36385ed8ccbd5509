// Command migrate applies the journal schema to SQLITE_PATH.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"

	"github.com/nkalkhof/ThermoBeacon/internal/db"
	"github.com/nkalkhof/ThermoBeacon/internal/db/migrate"
)

func main() {
	logger := slog.New(tint.NewHandler(os.Stderr, nil))

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <command>\n  migrate  apply pending journal migrations\n", os.Args[0])
		os.Exit(1)
	}

	path := os.Getenv("SQLITE_PATH")
	if path == "" {
		path = "data/thermobeacon.db"
	}

	switch os.Args[1] {
	case "migrate":
		conn, err := db.Open(db.Options{Path: path, MaxOpenConns: 1}, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "db open: %v\n", err)
			os.Exit(1)
		}
		applied, err := migrate.Run(context.Background(), conn, logger)
		if closeErr := conn.Close(); closeErr != nil {
			logger.Error("db close", "err", closeErr)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("migrations applied: %d\n", len(applied))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}
