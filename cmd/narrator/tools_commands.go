package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"narrator/internal/chunker"
	"narrator/internal/loaders"
	"narrator/internal/preflight"
	"narrator/internal/transcript"
)

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var maxChars int

	cmd := &cobra.Command{
		Use:   "extract <path-or-url>",
		Short: "Print the plain text extracted from a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit := maxChars
			if limit <= 0 {
				limit = ctx.configValue().Steps.Extract.MaxChars
			}
			text, err := loaders.New().Extract(cmd.Context(), absoluteSource(args[0]), limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "Character cap (defaults to steps.extract.max_chars)")
	return cmd
}

func newParseCommand() *cobra.Command {
	var literal bool

	cmd := &cobra.Command{
		Use:         "parse [file]",
		Short:       "Parse model output into dialogue turns (reads stdin without a file)",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			turns, strategy := transcript.ParseDetailed(raw)
			if len(turns) == 0 {
				return fmt.Errorf("no dialogue found in input")
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Parsed %d turns (%s)\n", len(turns), strategy)
			if literal {
				fmt.Fprintln(cmd.OutOrStdout(), transcript.FormatLiteral(turns))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), transcript.FormatReadable(turns))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&literal, "literal", false, "Print the canonical tuple-list form")
	return cmd
}

func newChunkCommand(ctx *commandContext) *cobra.Command {
	var size int

	cmd := &cobra.Command{
		Use:   "chunk [file]",
		Short: "Split text into word-aligned chunks (reads stdin without a file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			limit := size
			if limit <= 0 {
				limit = ctx.configValue().Steps.Extract.ChunkSize
			}
			out := cmd.OutOrStdout()
			for i, chunk := range chunker.Chunk(raw, limit) {
				fmt.Fprintf(out, "--- chunk %d (%d chars) ---\n%s\n", i+1, len([]rune(chunk)), chunk)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "Chunk size in characters (defaults to steps.extract.chunk_size)")
	return cmd
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var checkLLM bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			results := preflight.RunAll(cmd.Context(), ctx.configValue(), checkLLM)
			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, line := range checkLines(results, colorize) {
				fmt.Fprintln(out, line)
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				names := make([]string, 0, len(failed))
				for _, r := range failed {
					names = append(names, r.Name)
				}
				return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkLLM, "llm", false, "Also send a test completion to the model endpoint")
	return cmd
}

func checkLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		kind := statusOK
		switch {
		case !r.Passed && r.Optional:
			kind = statusWarn
		case !r.Passed:
			kind = statusError
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("read %s: %w", args[0], err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}
