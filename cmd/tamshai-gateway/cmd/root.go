// Package cmd provides the CLI commands for the Tamshai gateway.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tamshai/gateway/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tamshai-gateway",
	Short: "Tamshai Gateway - authorization-aware action gateway",
	Long: `Tamshai Gateway mediates every tool call an assistant makes against
the HR, Finance, and Sales backends.

It authenticates the caller, enforces role and ownership policy before any
backend is contacted, turns every mutating call into a human-confirmed
two-phase operation, and annotates truncated reads so callers can page
through the rest.

Quick start:
  1. Create a config file: tamshai-gateway.yaml
  2. Run: tamshai-gateway start

Configuration:
  Config is loaded from tamshai-gateway.yaml in the current directory,
  $HOME/.tamshai-gateway/, or /etc/tamshai-gateway/.

  Environment variables override config values with the TAMSHAI_GATEWAY_
  prefix. Example: TAMSHAI_GATEWAY_SERVER_ADDR=:9090

Commands:
  start       Start the gateway server
  hash-token  Generate an Argon2id hash for a bearer token
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./tamshai-gateway.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
