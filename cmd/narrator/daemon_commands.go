package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"narrator/internal/api"
	"narrator/internal/daemonctl"
)

const (
	daemonStartWait = 10 * time.Second
	daemonStopGrace = 45 * time.Second
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Start, stop or restart narratord",
	}

	var logLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start narratord in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := daemonctl.ResolveExecutable()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.EnsureStarted(cmd.Context(), ctx.daemonClient(), exe, ctx.launchOptions(logLevel), daemonStartWait)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop narratord after running jobs reach a step boundary",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(cmd.Context(), ctx.daemonClient(), ctx.configValue().Paths.LogDir, daemonStopGrace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not stop in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart narratord",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := daemonctl.ResolveExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.Restart(cmd.Context(), ctx.daemonClient(), ctx.configValue().Paths.LogDir, exe,
				ctx.launchOptions(restartLogLevel), daemonStopGrace, daemonStartWait)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if result.WasRunning {
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.Start.PID)
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Override logging.level for the daemon")

	daemonCmd.AddCommand(startCmd, stopCmd, restartCmd)
	return daemonCmd
}

// daemonClient targets narratord without probing it first.
func (c *commandContext) daemonClient() *api.Client {
	cfg := c.configValue()
	addr := cfg.Paths.APIBind
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		addr = strings.TrimSpace(*c.apiFlag)
	}
	return api.NewClient(addr, cfg.Paths.APIToken)
}

func (c *commandContext) launchOptions(logLevel string) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{LogLevel: logLevel}
	if c.configFlag != nil {
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			if abs, err := filepath.Abs(path); err == nil {
				opts.ConfigPath = abs
			}
		}
	}
	return opts
}
