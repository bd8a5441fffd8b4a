package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"narrator/internal/api"
	"narrator/internal/jobs"
	"narrator/internal/poller"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status [workspace-id]",
		Short: "Show daemon status, or the job of one workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return showDaemonStatus(cmd, ctx, asJSON)
			}
			id := strings.TrimSpace(args[0])
			return ctx.withSession(cmd.Context(), func(sess *session) error {
				resp, err := sess.client.Job(cmd.Context(), id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				update, ok := jobUpdate(resp)
				if !ok {
					fmt.Fprintln(out, "No runs yet")
					return nil
				}
				if resp.Interrupted {
					fmt.Fprintln(out, "The previous run was interrupted (narratord stopped while it was running)")
				}
				if follow && !update.Final {
					cfg := ctx.configValue()
					return followJob(cmd.Context(), out, sess, id, update, followOptions{
						interval:    cfg.PollInterval(),
						audioFormat: cfg.Steps.Audio.Format,
					})
				}
				fmt.Fprintln(out, renderProgressLine(update, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow a running job until it ends")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func showDaemonStatus(cmd *cobra.Command, ctx *commandContext, asJSON bool) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	client, ok, err := ctx.remoteClient(cmd.Context())
	if err != nil {
		return err
	}
	if !ok {
		if asJSON {
			return writeJSON(cmd, api.StatusResponse{Running: false})
		}
		fmt.Fprintln(out, renderStatusLine("narratord", statusWarn, "Not running (commands run in-process)", colorize))
		return nil
	}
	status, err := client.Status(cmd.Context())
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd, status)
	}

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("narratord", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	fmt.Fprintln(out, renderStatusLine("Store", statusInfo, status.StorePath, colorize))
	fmt.Fprintln(out, renderStatusLine("Lock", statusInfo, status.LockFilePath, colorize))

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Jobs", colorize) {
		fmt.Fprintln(out, line)
	}
	if len(status.Jobs) == 0 {
		fmt.Fprintln(out, "No active jobs")
		return nil
	}
	fmt.Fprint(out, renderJobsTable(status.Jobs, time.Now()))
	fmt.Fprintln(out)
	return nil
}

func renderJobsTable(list []jobs.Snapshot, now time.Time) string {
	rows := make([][]string, 0, len(list))
	for _, snap := range list {
		update := poller.Describe(snap, now)
		rows = append(rows, []string{
			snap.WorkspaceID,
			string(snap.Status),
			update.Progress,
			strconv.FormatFloat(update.Elapsed, 'f', 1, 64) + "s",
		})
	}
	return renderTable(
		[]string{"Workspace", "Status", "Progress", "Elapsed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <workspace-id>",
		Short: "Cancel a running job after its current step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd.Context(), func(client *api.Client) error {
				resp, err := client.Cancel(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if resp.Cancelled {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancellation requested; the run stops after the current step")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "No running job")
				}
				return nil
			})
		},
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history <workspace-id>",
		Short: "List past runs of a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd.Context(), func(client *api.Client) error {
				resp, err := client.History(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Entries)
				}
				out := cmd.OutOrStdout()
				if len(resp.Entries) == 0 {
					fmt.Fprintln(out, "No runs yet")
					return nil
				}
				rows := make([][]string, 0, len(resp.Entries))
				for _, entry := range resp.Entries {
					detail := strings.Join(entry.Outputs, ", ")
					if entry.Error != "" {
						detail = entry.Error
					}
					rows = append(rows, []string{
						entry.Timestamp.Local().Format("2006-01-02 15:04"),
						entry.Format,
						entry.Length,
						entry.Style,
						entry.Status,
						strconv.FormatFloat(entry.DurationS, 'f', 1, 64) + "s",
						detail,
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"When", "Format", "Length", "Style", "Status", "Duration", "Outputs"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
