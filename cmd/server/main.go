package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	rootFlag string
	portFlag string
	hostFlag string
	dsnFlag  string
	devFlag  bool
)

// rootCmd runs the server when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "fs-proxy",
	Short: "Serve a directory tree over HTTP",
	Long: `fs-proxy exposes one sandboxed directory over HTTP for reading, writing
and listing files. Paths are confined to the sandbox root, writes are atomic
and every operation can be recorded to an audit store.

Configuration comes from environment variables (optionally a .env file in the
working directory or next to the executable); flags override them.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rootFlag, "root", "", "Sandbox root directory (overrides SANDBOX_ROOT)")
	flags.StringVar(&portFlag, "port", "", "Listen port (overrides PORT)")
	flags.StringVar(&hostFlag, "host", "", "Listen host (overrides HOST)")
	flags.StringVar(&dsnFlag, "metadata-dsn", "", "Audit store DSN, e.g. sqlite:///var/lib/fs-proxy/audit.db (overrides METADATA_DSN)")
	flags.BoolVar(&devFlag, "dev", false, "Development mode: debug level, console logs")
}
