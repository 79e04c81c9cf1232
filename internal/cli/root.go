package cli

import (
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "ciload",
	Short:   "Load generator for CI orchestration servers",
	Version: version,
	Long: `ciload simulates many concurrent users against a Jenkins-like CI server.

Two profiles ship with it:
  build-trigger  repeatedly POSTs to a job's build endpoint
  webhook        replays GitHub pull_request webhooks to /github-webhook/

Targets and credentials come from the environment (JENKINS_HOST,
JENKINS_API_TOKEN, JENKINS_JOB_PATH, WEBHOOK_HOST, ...).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. It is called by main.main().
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (default from CILOAD_LOG_LEVEL, else info). error hides the per-request build-trigger warnings")

	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(profilesCmd)
	RootCmd.AddCommand(payloadCmd)
}
