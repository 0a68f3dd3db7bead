package main

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qiuzhanghua/fs-proxy/internal/shared/paths"
)

var stopCmd = &cobra.Command{
	Use:          "stop",
	Short:        "Stop a running server",
	Long:         "Send SIGTERM to the server recorded in the PID file next to the executable.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := paths.ReadPID(paths.PIDFile())
		if errors.Is(err, paths.ErrNoPIDFile) {
			return errors.New("fs-proxy is not running (no pid file)")
		}
		if err != nil {
			return err
		}

		proc, err := os.FindProcess(pid)
		if err != nil {
			return fmt.Errorf("failed to find process %d: %w", pid, err)
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("failed to stop process %d: %w", pid, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to fs-proxy (pid %d)\n", pid)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:          "status",
	Short:        "Report whether a server is running",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		pid, err := paths.ReadPID(paths.PIDFile())
		if errors.Is(err, paths.ErrNoPIDFile) {
			fmt.Fprintln(out, "fs-proxy is not running")
			return nil
		}
		if err != nil {
			return err
		}

		if !alive(pid) {
			fmt.Fprintf(out, "fs-proxy is not running (stale pid file for %d)\n", pid)
			return nil
		}
		fmt.Fprintf(out, "fs-proxy is running (pid %d)\n", pid)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
}

// alive reports whether pid names a live process
func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
