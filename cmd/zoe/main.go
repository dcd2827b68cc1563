package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zoe-analytics/zoe/pkg/log"
)

// Exit codes, per the CLI's external contract: 0 success, 1 user error, 2
// backend error, 3 auth error.
const (
	exitSuccess      = 0
	exitUserError    = 1
	exitBackendError = 2
	exitAuthError    = 3
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:     "zoe",
	Short:   "Zoe - analytics application control plane",
	Version: version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("zoe version %s (%s)\n", version, commit))

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "output logs as JSON")
	rootCmd.PersistentFlags().String("master", "", "master URL, e.g. http://127.0.0.1:8080 (overrides ZOE_MASTER_ADDRESS)")
	rootCmd.PersistentFlags().String("username", "", "username for Basic auth (overrides ZOE_USERNAME)")
	rootCmd.PersistentFlags().String("password", "", "password for Basic auth (overrides ZOE_PASSWORD)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(psCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(terminateCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
}
