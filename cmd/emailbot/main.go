package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var envFiles []string

var rootCmd = &cobra.Command{
	Use:   "emailbot",
	Short: "Multi-tenant bulk email service",
	Long: `emailbot sends templated campaigns to uploaded contact lists through
SES, Gmail, SMTP or Postmark, enforcing per-plan monthly quotas.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnvFiles(envFiles)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "emailbot %s (built %s)\n", version, buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before reading the environment")
	rootCmd.AddCommand(versionCmd, serveCmd, indexesCmd, plansCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
