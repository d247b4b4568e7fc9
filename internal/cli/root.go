package cli

import (
	"github.com/spf13/cobra"

	"github.com/agent365/a365ctl/internal/logging"
)

var (
	logLevel  string
	noBrowser bool
)

var rootCmd = &cobra.Command{
	Use:   "a365ctl",
	Short: "Provision Agent 365 hosting and identity resources",
	Long: `a365ctl provisions everything an Agent 365 deployment needs:
hosting infrastructure, the agent blueprint identity, delegated
permissions, and the messaging endpoint.

Every step is idempotent. Re-run any command after a partial failure
and it picks up where it left off.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log verbosity (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noBrowser, "no-browser", false, "Print consent URLs instead of opening a browser")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(infraCmd)
	rootCmd.AddCommand(blueprintCmd)
	rootCmd.AddCommand(permissionsCmd)
	rootCmd.AddCommand(endpointCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}
