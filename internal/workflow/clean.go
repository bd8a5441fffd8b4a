package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"narrator/internal/logging"
	"narrator/internal/services/llm"
)

// DefaultCleanWorkers bounds concurrent chunk-cleaning calls.
const DefaultCleanWorkers = 4

// ChunkFailure is one chunk whose cleaning call failed.
type ChunkFailure struct {
	Index int
	Err   error
}

// ChunkProcessingError aggregates every failed chunk of a cleaning pass.
type ChunkProcessingError struct {
	Failures []ChunkFailure
}

func (e *ChunkProcessingError) Error() string {
	lines := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		lines[i] = fmt.Sprintf("Chunk %d: %v", f.Index, f.Err)
	}
	return fmt.Sprintf("%d chunk(s) failed:\n  %s", len(e.Failures), strings.Join(lines, "\n  "))
}

// Unwrap exposes every chunk's cause.
func (e *ChunkProcessingError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// CleanParams are the model settings of the cleaning pass.
type CleanParams struct {
	Format      string
	Model       string
	MaxTokens   int
	Temperature float64
	Workers     int
}

// CleanChunks sends every chunk through the model and returns the results in
// chunk order, each followed by a newline. More than one chunk runs on a pool
// of at most params.Workers goroutines. Every failure is collected before the
// pass fails, so the error names all failing chunks.
func CleanChunks(ctx context.Context, client llm.Completer, chunks []string, params CleanParams, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	results := make([]string, len(chunks))
	clean := func(ctx context.Context, i int) error {
		out, err := client.Complete(ctx, []llm.Message{llm.User(cleanMessage(params.Format, chunks[i]))},
			params.Model, params.MaxTokens, params.Temperature)
		if err != nil {
			return err
		}
		results[i] = out
		return nil
	}

	if len(chunks) <= 1 {
		for i := range chunks {
			if err := clean(ctx, i); err != nil {
				return "", &ChunkProcessingError{Failures: []ChunkFailure{{Index: i, Err: err}}}
			}
		}
		return assemble(results), nil
	}

	workers := params.Workers
	if workers <= 0 {
		workers = DefaultCleanWorkers
	}
	workers = min(workers, len(chunks))
	logging.WithContext(ctx, logger).Info("cleaning chunks in parallel",
		logging.Int("chunks", len(chunks)),
		logging.Int("workers", workers),
	)

	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures []ChunkFailure
	)
	g.SetLimit(workers)
	for i := range chunks {
		g.Go(func() error {
			if err := clean(ctx, i); err != nil {
				mu.Lock()
				failures = append(failures, ChunkFailure{Index: i, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		sort.Slice(failures, func(a, b int) bool { return failures[a].Index < failures[b].Index })
		return "", &ChunkProcessingError{Failures: failures}
	}
	return assemble(results), nil
}

func assemble(results []string) string {
	var b strings.Builder
	for _, r := range results {
		b.WriteString(r)
		b.WriteByte('\n')
	}
	return b.String()
}
