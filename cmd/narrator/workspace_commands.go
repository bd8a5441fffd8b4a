package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"narrator/internal/api"
	"narrator/internal/workspace"
)

func newWorkspaceCommand(ctx *commandContext) *cobra.Command {
	wsCmd := &cobra.Command{
		Use:     "workspace",
		Aliases: []string{"ws"},
		Short:   "Manage workspaces",
	}

	wsCmd.AddCommand(newWorkspaceListCommand(ctx))
	wsCmd.AddCommand(newWorkspaceCreateCommand(ctx))
	wsCmd.AddCommand(newWorkspaceShowCommand(ctx))
	wsCmd.AddCommand(newWorkspaceRenameCommand(ctx))
	wsCmd.AddCommand(newWorkspaceSettingsCommand(ctx))
	wsCmd.AddCommand(newWorkspaceDeleteCommand(ctx))
	wsCmd.AddCommand(newWorkspaceAddSourceCommand(ctx))
	wsCmd.AddCommand(newWorkspaceRemoveSourceCommand(ctx))

	return wsCmd
}

func newWorkspaceListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd.Context(), func(client *api.Client) error {
				resp, err := client.Workspaces(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Workspaces)
				}
				out := cmd.OutOrStdout()
				if len(resp.Workspaces) == 0 {
					fmt.Fprintln(out, "No workspaces")
					return nil
				}
				rows := make([][]string, 0, len(resp.Workspaces))
				for _, ws := range resp.Workspaces {
					rows = append(rows, []string{
						ws.ID,
						ws.Name,
						ws.Settings.Format,
						ws.UpdatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Name", "Format", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newWorkspaceCreateCommand(ctx *commandContext) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.CreateWorkspaceRequest{Source: absoluteSource(source)}
			if len(args) == 1 {
				req.Name = strings.TrimSpace(args[0])
			}
			if req.Name == "" && req.Source == "" {
				return fmt.Errorf("a name or --source is required")
			}
			return ctx.withClient(cmd.Context(), func(client *api.Client) error {
				ws, err := client.CreateWorkspace(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created workspace %s (%s)\n", ws.Name, ws.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "Document path or URL to attach")
	return cmd
}

func newWorkspaceShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <workspace-id>",
		Short: "Show a workspace with its sources and settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd.Context(), func(client *api.Client) error {
				ws, err := client.Workspace(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, ws)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Name:       %s\n", ws.Name)
				fmt.Fprintf(out, "ID:         %s\n", ws.ID)
				fmt.Fprintf(out, "Running:    %s\n", yesNo(ws.Running))
				fmt.Fprintf(out, "Format:     %s\n", valueOrDefault(ws.Settings.Format))
				fmt.Fprintf(out, "Length:     %s\n", valueOrDefault(ws.Settings.Length))
				fmt.Fprintf(out, "Style:      %s\n", valueOrDefault(ws.Settings.Style))
				fmt.Fprintf(out, "Language:   %s\n", valueOrDefault(ws.Settings.Language))
				if ws.Settings.Preference != "" {
					fmt.Fprintf(out, "Preference: %s\n", ws.Settings.Preference)
				}
				if len(ws.Sources) == 0 {
					fmt.Fprintln(out, "Sources:    none")
					return nil
				}
				rows := make([][]string, 0, len(ws.Sources))
				for _, src := range ws.Sources {
					rows = append(rows, []string{strconv.FormatInt(src.ID, 10), string(src.Kind), src.Ref})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Kind", "Source"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newWorkspaceRenameCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <workspace-id> <name>",
		Short: "Rename a workspace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[1])
			return ctx.withClient(cmd.Context(), func(client *api.Client) error {
				ws, err := client.UpdateWorkspace(cmd.Context(), strings.TrimSpace(args[0]), api.UpdateWorkspaceRequest{Name: &name})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed workspace %s to %s\n", ws.ID, ws.Name)
				return nil
			})
		},
	}
}

func newWorkspaceSettingsCommand(ctx *commandContext) *cobra.Command {
	var settings workspace.Settings

	cmd := &cobra.Command{
		Use:   "settings <workspace-id>",
		Short: "Change the remembered generation settings of a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(cmd.Context(), func(client *api.Client) error {
				current, err := client.Workspace(cmd.Context(), id)
				if err != nil {
					return err
				}
				merged := current.Settings
				flags := cmd.Flags()
				if flags.Changed("format") {
					merged.Format = settings.Format
				}
				if flags.Changed("length") {
					merged.Length = settings.Length
				}
				if flags.Changed("style") {
					merged.Style = settings.Style
				}
				if flags.Changed("language") {
					merged.Language = settings.Language
				}
				if flags.Changed("preference") {
					merged.Preference = settings.Preference
				}
				ws, err := client.UpdateWorkspace(cmd.Context(), id, api.UpdateWorkspaceRequest{Settings: &merged})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated settings for %s\n", ws.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&settings.Format, "format", "", "Script format")
	cmd.Flags().StringVar(&settings.Length, "length", "", "Script length")
	cmd.Flags().StringVar(&settings.Style, "style", "", "Script style")
	cmd.Flags().StringVar(&settings.Language, "language", "", "Output language")
	cmd.Flags().StringVar(&settings.Preference, "preference", "", "Free-form guidance for the script writer")
	return cmd
}

func newWorkspaceDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <workspace-id>",
		Short: "Delete a workspace and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(cmd.Context(), func(client *api.Client) error {
				if err := client.DeleteWorkspace(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted workspace %s\n", id)
				return nil
			})
		},
	}
}

func newWorkspaceAddSourceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add-source <workspace-id> <path-or-url>",
		Short: "Attach a document or URL to a workspace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd.Context(), func(client *api.Client) error {
				resp, err := client.AddSource(cmd.Context(), strings.TrimSpace(args[0]), absoluteSource(args[1]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added source %d: %s\n", resp.Source.ID, resp.Source.Ref)
				return nil
			})
		},
	}
}

func newWorkspaceRemoveSourceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-source <workspace-id> <source-id>",
		Short: "Detach a source from a workspace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceID, err := strconv.ParseInt(strings.TrimSpace(args[1]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid source id %q", args[1])
			}
			return ctx.withClient(cmd.Context(), func(client *api.Client) error {
				if err := client.RemoveSource(cmd.Context(), strings.TrimSpace(args[0]), sourceID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed source %d\n", sourceID)
				return nil
			})
		},
	}
}

func valueOrDefault(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(default)"
	}
	return value
}
