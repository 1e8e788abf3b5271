package cmd

import (
	"github.com/AtRiskMedia/leaddesk-go/internal/application/startup"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the console HTTP server",
	Long: `Run the console HTTP server until SIGINT or SIGTERM.

Configuration comes from the environment and an optional .env file in the
working directory. Flags override the matching variables for this run.

Examples:
  # Serve on the configured PORT
  leaddesk serve

  # Serve on 9090 with debug logging
  leaddesk serve --port 9090 --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	servePort     string
	serveLogLevel string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (overrides PORT)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "default log level: debug, info, warn, error (overrides LOG_LEVEL)")
}

func runServe(cmd *cobra.Command, args []string) error {
	return startup.Initialize(startup.Options{
		Port:     servePort,
		LogLevel: serveLogLevel,
	})
}
