package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tanelvakker/qwtimers/internal/logging"
)

var (
	verbose    bool
	jsonOutput bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "qwtimers",
	Short: "Local proxy for the Qilowatt timers client",
	Long: `qwtimers runs a local reverse proxy in front of the Qilowatt API
and serves the browser timers client from the same origin.

The proxy:
  - relays logins over a dedicated HTTP/2 session and keeps the
    upstream session cookies
  - forwards /api and /devices calls with those cookies attached
  - writes a best-effort diagnostic log of every proxied call`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbose, jsonOutput, os.Stderr)
	},
}

// Execute runs the root command and reports a failure to the user.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logging.UserError("%v", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a TOML config file")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Helper aliases for user-facing output (delegates to logging package)
var (
	logInfo    = logging.UserInfo
	logSuccess = logging.UserSuccess
	logWarning = logging.UserWarning
)
