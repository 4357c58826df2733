package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "escalator",
	Short: "Incident tracker with SLA-breach email escalation",
	Long: `escalator records incidents with an SLA and emails the reporter once
when an incident is still open after its SLA elapses.

Configuration is read from defaults, an optional YAML file (--config or
CONFIG_FILE) and ESCALATOR_ environment variables, e.g. ESCALATOR_SMTP__HOST.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
