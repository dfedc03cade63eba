package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/caraxes029/Navigator/internal/config"
	"github.com/caraxes029/Navigator/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "navigator",
	Short: "Real-time navigation session with congestion and route compliance tracking",
	Long: `navigator follows one agent along a route. Every tick it reads the agent's
position, checks route compliance, samples live traffic, advances an SIR
congestion model and publishes a snapshot. Without a subcommand it runs serve.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	rootCmd.AddCommand(serveCmd, simulateCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := logging.Setup(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}
