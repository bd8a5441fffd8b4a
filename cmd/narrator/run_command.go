package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"narrator/internal/api"
	"narrator/internal/jobs"
	"narrator/internal/loaders"
	"narrator/internal/poller"
	"narrator/internal/textutil"
	"narrator/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var workspaceID string
	var name string
	var opts workflow.Options
	var detach bool

	cmd := &cobra.Command{
		Use:   "run [source]",
		Short: "Generate a podcast transcript from a document or URL",
		Long: "Generate runs extraction, script writing and dialogue preparation for a\n" +
			"workspace, plus optional audio and summary steps. Without --workspace a new\n" +
			"workspace is created for the source. Without a source the workspace's most\n" +
			"recent source is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Source = absoluteSource(args[0])
			}
			if strings.TrimSpace(workspaceID) == "" && opts.Source == "" {
				return errors.New("a source is required when no --workspace is given")
			}

			return ctx.withSession(cmd.Context(), func(sess *session) error {
				out := cmd.OutOrStdout()
				id := strings.TrimSpace(workspaceID)
				if id == "" {
					wsName := strings.TrimSpace(name)
					if wsName == "" {
						wsName = textutil.WorkspaceName(opts.Source)
					}
					ws, err := sess.client.CreateWorkspace(cmd.Context(), api.CreateWorkspaceRequest{
						Name:   wsName,
						Source: opts.Source,
					})
					if err != nil {
						return err
					}
					id = ws.ID
					fmt.Fprintf(out, "Workspace %s (%s)\n", ws.Name, ws.ID)
				}

				resp, err := sess.client.Generate(cmd.Context(), id, opts)
				if err != nil {
					return err
				}
				if resp.Attached {
					fmt.Fprintln(out, "A run is already in progress; following it")
				}
				if detach {
					if sess.embedded() {
						return errors.New("--detach requires a running narratord")
					}
					fmt.Fprintf(out, "Started run %s\n", resp.Update.Snapshot.ID)
					fmt.Fprintf(out, "Follow with: narrator status %s --follow\n", id)
					return nil
				}
				cfg := ctx.configValue()
				return followJob(cmd.Context(), out, sess, id, resp.Update, followOptions{
					interval:    cfg.PollInterval(),
					audioFormat: cfg.Steps.Audio.Format,
				})
			})
		},
	}

	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "", "Existing workspace id")
	cmd.Flags().StringVar(&name, "name", "", "Name for a new workspace (defaults to the source name)")
	cmd.Flags().StringVar(&opts.Format, "format", "", "Script format: "+strings.Join(workflow.Formats, ", "))
	cmd.Flags().StringVar(&opts.Length, "length", "", "Script length: "+strings.Join(workflow.Lengths, ", "))
	cmd.Flags().StringVar(&opts.Style, "style", "", "Script style: "+strings.Join(workflow.Styles, ", "))
	cmd.Flags().StringVar(&opts.Language, "language", "", "Output language")
	cmd.Flags().StringVar(&opts.Preference, "preference", "", "Free-form guidance for the script writer")
	cmd.Flags().BoolVar(&opts.Audio, "audio", false, "Synthesize audio for each dialogue turn")
	cmd.Flags().BoolVar(&opts.Artifacts, "artifacts", false, "Write a structured summary after the transcript")
	cmd.Flags().StringVar(&opts.HostVoice, "host-voice", "", "Voice for the host")
	cmd.Flags().StringVar(&opts.CohostVoice, "cohost-voice", "", "Voice for the co-host")
	cmd.Flags().BoolVar(&detach, "detach", false, "Return after starting the run")
	return cmd
}

type followOptions struct {
	interval    time.Duration
	audioFormat string
}

// followJob prints progress until the job ends. Interrupting cancels an
// in-process run, and detaches from a run owned by narratord.
func followJob(parent context.Context, out io.Writer, sess *session, workspaceID string, first poller.Update, opts followOptions) error {
	signalCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := &progressPrinter{out: out, colorize: shouldColorize(out)}
	printer.print(first)
	if first.Final {
		return finishJob(out, sess, workspaceID, first, opts.audioFormat)
	}

	var (
		final poller.Update
		err   error
	)
	if sess.embedded() {
		final, err = followEmbedded(signalCtx, out, sess, workspaceID, printer, opts.interval)
	} else {
		final, err = followRemote(signalCtx, out, sess, workspaceID, printer, opts.interval)
	}
	if err != nil || !final.Final {
		return err
	}
	return finishJob(out, sess, workspaceID, final, opts.audioFormat)
}

// followEmbedded watches an in-process run through its Poller. After an
// interrupt the run is cancelled and watched until it stops.
func followEmbedded(ctx context.Context, out io.Writer, sess *session, workspaceID string, printer *progressPrinter, interval time.Duration) (poller.Update, error) {
	watcher := sess.runtime.Poller
	update, err := watcher.Attach(ctx, workspaceID, printer.print)
	switch {
	case errors.Is(err, poller.ErrNoJob):
		return followRemote(ctx, out, sess, workspaceID, printer, interval)
	case err == nil || ctx.Err() == nil:
		return update, err
	}
	fmt.Fprintln(out, "\nCancelling; the run stops after the current step")
	sess.runtime.Registry.Cancel(workspaceID)
	return watcher.Attach(context.Background(), workspaceID, printer.print)
}

// followRemote polls narratord's job endpoint until the run ends or ctx does.
func followRemote(ctx context.Context, out io.Writer, sess *session, workspaceID string, printer *progressPrinter, interval time.Duration) (poller.Update, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(out, "\nDetached. The run continues; follow with: narrator status %s --follow\n", workspaceID)
			return poller.Update{}, nil
		case <-ticker.C:
		}

		resp, err := sess.client.Job(context.Background(), workspaceID)
		if err != nil {
			return poller.Update{}, err
		}
		update, ok := jobUpdate(resp)
		if !ok {
			return poller.Update{}, fmt.Errorf("workspace %s has no job", workspaceID)
		}
		printer.print(update)
		if update.Final {
			return update, nil
		}
	}
}

// jobUpdate prefers the live job and falls back to the persisted state once
// the job has been dropped from the registry.
func jobUpdate(resp *api.JobResponse) (poller.Update, bool) {
	if resp.Active != nil {
		return *resp.Active, true
	}
	if resp.Last == nil {
		return poller.Update{}, false
	}
	snap := jobs.Snapshot{
		Status:      resp.Last.Status,
		CurrentStep: resp.Last.CurrentStep,
		TotalSteps:  resp.Last.TotalSteps,
		StepLabel:   resp.Last.StepLabel,
		StepTimes:   resp.Last.StepTimes,
		Error:       resp.Last.Error,
		FailedStep:  resp.Last.FailedStep,
	}
	update := poller.Describe(snap, time.Now())
	update.Final = true
	return update, true
}

func finishJob(out io.Writer, sess *session, workspaceID string, update poller.Update, audioFormat string) error {
	switch update.Snapshot.Status {
	case jobs.StatusCompleted:
		fmt.Fprintln(out, "Outputs:")
		for _, file := range outputFiles(sess, workspaceID, audioFormat) {
			fmt.Fprintf(out, "  narrator download %s %s\n", workspaceID, file)
		}
		return nil
	case jobs.StatusCancelled:
		return context.Canceled
	default:
		if update.Failure != nil {
			return errors.New(update.Failure.Message())
		}
		return fmt.Errorf("run ended with status %s", update.Snapshot.Status)
	}
}

// outputFiles lists downloadable files for the newest run.
func outputFiles(sess *session, workspaceID, audioFormat string) []string {
	files := []string{workflow.TranscriptFile, workflow.ReadableFile}
	resp, err := sess.client.History(context.Background(), workspaceID)
	if err != nil || len(resp.Entries) == 0 {
		return files
	}
	for _, output := range resp.Entries[0].Outputs {
		switch output {
		case "Audio":
			files = append(files, workflow.AudioFile(audioFormat))
		case "Summary":
			files = append(files, workflow.SummaryMarkdownFile)
		}
	}
	return files
}

// absoluteSource resolves local paths against the working directory so a
// remote daemon sees the same file.
func absoluteSource(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || loaders.IsURL(ref) {
		return ref
	}
	if abs, err := filepath.Abs(ref); err == nil {
		return abs
	}
	return ref
}
