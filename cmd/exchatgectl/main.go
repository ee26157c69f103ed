package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Set via -ldflags at build time:
//
//	go build -ldflags "-X main.version=0.1.0 -X main.commit=$(git rev-parse --short HEAD) -X main.buildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)" -o exchatgectl ./cmd/exchatgectl
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "exchatgectl",
	Short: "exchatge client CLI",
	Long: `exchatgectl drives the exchatge client protocol engine (connect,
authenticate, send messages, exchange files) from the command line.

Configuration (server address, pinned signing key, optional saved
credentials) is read from ./options.txt, created with defaults on
first run.`,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().String("config", "", "path to options.txt (default: ./options.txt)")
	rootCmd.PersistentFlags().String("password", "", "store/login password (prompted if omitted)")
	rootCmd.PersistentFlags().Bool("dump-config", false, "print the resolved configuration as YAML and exit")
	rootCmd.PersistentFlags().String("metrics-addr", "", "address to serve Prometheus /metrics on (disabled if empty)")

	rootCmd.Version = fmt.Sprintf("%s (%s) built %s, %s %s/%s", version, commit, buildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
