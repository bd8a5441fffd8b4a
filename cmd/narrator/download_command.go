package main

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"narrator/internal/api"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <workspace-id> <step/file>",
		Short: "Download a step output, e.g. step3/podcast_ready_data.txt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			file := strings.Trim(strings.TrimSpace(args[1]), "/")
			if strings.Count(file, "/") != 1 {
				return fmt.Errorf("file must look like step3/podcast_ready_data.txt, got %q", args[1])
			}

			return ctx.withClient(cmd.Context(), func(client *api.Client) error {
				var w io.Writer = cmd.OutOrStdout()
				target := strings.TrimSpace(output)
				if target == "" && !isText(file) {
					target = path.Base(file)
				}
				if target != "" && target != "-" {
					f, err := os.Create(target)
					if err != nil {
						return fmt.Errorf("create %s: %w", target, err)
					}
					defer f.Close()
					w = f
				}
				if err := client.Download(cmd.Context(), id, file, w); err != nil {
					if target != "" && target != "-" {
						_ = os.Remove(target)
					}
					return err
				}
				if target != "" && target != "-" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s\n", target)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (\"-\" for stdout; binary outputs default to the file name)")
	return cmd
}

func isText(file string) bool {
	switch strings.ToLower(path.Ext(file)) {
	case ".txt", ".md", ".json":
		return true
	default:
		return false
	}
}
