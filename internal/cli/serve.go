package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"toolcrib/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app := &server.App{}
		if err := app.Initialize(configFrom(cmd)); err != nil {
			return err
		}
		return app.Run(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		d, err := requireDB(cmd)
		if err != nil {
			return err
		}
		defer closeDB(d)
		return output(cmd, map[string]string{"status": "ok"}, "schema is up to date")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}
