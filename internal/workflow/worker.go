package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"narrator/internal/chunker"
	"narrator/internal/config"
	"narrator/internal/fileutil"
	"narrator/internal/jobs"
	"narrator/internal/logging"
	"narrator/internal/overlap"
	"narrator/internal/preflight"
	"narrator/internal/services"
	"narrator/internal/services/llm"
	"narrator/internal/transcript"
	"narrator/internal/workspace"
)

// maxHistoryError bounds the error text kept in a history entry.
const maxHistoryError = 200

// Extractor turns a source reference into text.
type Extractor interface {
	Extract(ctx context.Context, source string, maxChars int) (string, error)
}

// HistoryRecorder stores one entry per finished run.
type HistoryRecorder interface {
	AddHistory(ctx context.Context, workspaceID string, entry workspace.HistoryEntry) error
}

// Dependencies are the collaborators a Worker calls.
type Dependencies struct {
	Loader  Extractor
	Client  llm.Completer
	Speech  Synthesizer
	History HistoryRecorder
}

// Worker runs the generation pipeline for one Job at a time. A Worker is
// stateless between runs and safe for concurrent use across workspaces.
type Worker struct {
	cfg    *config.Config
	deps   Dependencies
	engine *overlap.Engine
	logger *slog.Logger
}

// NewWorker constructs a Worker.
func NewWorker(cfg *config.Config, deps Dependencies, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	h := cfg.Heuristics
	engine := overlap.New(deps.Client, overlap.Heuristics{
		GoodbyePhrases:     h.GoodbyePhrases,
		ContinuationPhrase: h.ContinuationPhrase,
		MaxSkip:            h.MaxSkip,
		SkipDivisor:        h.SkipDivisor,
		MinMonologueChars:  h.MinMonologueChars,
		ContextTurns:       h.ContextTurns,
	}, logger)
	return &Worker{cfg: cfg, deps: deps, engine: engine, logger: logger}
}

type step struct {
	label    string
	optional bool
	run      func(ctx context.Context, r *run) error
}

// run is the state carried from one step to the next.
type run struct {
	opts    Options
	dir     string
	logger  *slog.Logger
	text    string
	cleaned string
	script  string
	turns   []transcript.Turn
	outputs []string
}

// Func returns the jobs.WorkerFunc running opts. opts must already be
// normalized; its Plan is the one to start the Job with.
func (w *Worker) Func(opts Options) jobs.WorkerFunc {
	return func(ctx context.Context, job *jobs.Job) error {
		return w.execute(ctx, job, opts)
	}
}

func (w *Worker) steps(opts Options) []step {
	steps := []step{
		{label: LabelExtract, run: w.extract},
		{label: LabelScript, run: w.writeScript},
		{label: LabelTTSPrep, run: w.prepareDialogue},
	}
	if opts.Audio {
		steps = append(steps, step{label: LabelAudio, run: w.synthesize})
	}
	if opts.Artifacts {
		steps = append(steps, step{label: LabelArtifacts, optional: true, run: w.summarize})
	}
	return steps
}

func (w *Worker) execute(ctx context.Context, job *jobs.Job, opts Options) error {
	started := time.Now()
	rl, err := openRunLog(w.logger, job, w.cfg.Logging.Format, w.cfg.Logging.Level)
	if err != nil {
		logging.WarnWithContext(w.logger, "run log unavailable; logging to daemon only", "run_log_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "per-run log file and job log text will be empty"),
		)
		rl = &runLog{logger: w.logger}
	}
	defer rl.Close()

	logger := logging.NewComponentLogger(rl.logger, "worker")
	r := &run{opts: opts, dir: job.WorkDir(), logger: logger}
	steps := w.steps(opts)

	for i, st := range steps {
		index := i + 1
		if job.CancelRequested() {
			logging.WithContext(ctx, logger).Info("worker stopped at step boundary after cancellation",
				logging.Event("job_cancel_acknowledged"),
				logging.Int("next_step", index),
			)
			w.record(ctx, job, r, started, workspace.HistoryCancelled, nil)
			return nil
		}

		stepCtx := services.WithStep(ctx, st.label)
		stepLogger := logging.WithContext(stepCtx, logger)
		stepLogger.Info("step started",
			logging.Event("step_start"),
			logging.Int("current_step", index),
			logging.Int("total_steps", len(steps)),
		)
		stepStart := time.Now()
		err := st.run(stepCtx, r)
		elapsed := time.Since(stepStart).Seconds()

		if err != nil && st.optional {
			logging.WarnWithContext(stepLogger, "optional step failed; continuing", "step_failed",
				logging.Int("current_step", index),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, Hint(err.Error())),
				logging.String(logging.FieldImpact, "companion artifacts were not produced"),
			)
			err = nil
		}
		if err != nil {
			if job.CancelRequested() {
				w.record(ctx, job, r, started, workspace.HistoryCancelled, nil)
				return nil
			}
			logging.ErrorWithContext(stepLogger, "step failed", "step_failed",
				logging.Int("failed_step", index),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, Hint(err.Error())),
			)
			job.Fail(index, err)
			w.record(ctx, job, r, started, workspace.HistoryFailed, err)
			return err
		}

		stepLogger.Info("step completed",
			logging.Event("step_complete"),
			logging.Int("current_step", index),
			logging.Seconds("elapsed", elapsed),
		)
		if index < len(steps) {
			job.Advance(elapsed, steps[i+1].label)
		} else {
			job.Finish(elapsed)
		}
	}

	if job.Snapshot().Status != jobs.StatusCompleted {
		w.record(ctx, job, r, started, workspace.HistoryCancelled, nil)
		return nil
	}
	logging.WithContext(ctx, logger).Info("generation complete",
		logging.Event("job_complete"),
		logging.String("outputs", strings.Join(r.outputs, ", ")),
		logging.Seconds("duration", time.Since(started).Seconds()),
	)
	w.record(ctx, job, r, started, workspace.HistorySuccess, nil)
	return nil
}

func (w *Worker) record(ctx context.Context, job *jobs.Job, r *run, started time.Time, status string, runErr error) {
	if w.deps.History == nil {
		return
	}
	entry := workspace.HistoryEntry{
		Timestamp: time.Now().UTC(),
		Format:    r.opts.Format,
		Length:    r.opts.Length,
		Style:     r.opts.Style,
		Language:  r.opts.Language,
		DurationS: workspace.RoundDuration(time.Since(started)),
		StepTimes: job.Snapshot().StepTimes,
		Status:    status,
		Outputs:   r.outputs,
	}
	if status != workspace.HistorySuccess {
		entry.Outputs = []string{}
	}
	if runErr != nil {
		entry.Error = headRunes(runErr.Error(), maxHistoryError)
	}
	if err := w.deps.History.AddHistory(context.WithoutCancel(ctx), job.WorkspaceID(), entry); err != nil {
		logging.WarnWithContext(r.logger, "history entry not recorded", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run will be missing from workspace history"),
		)
	}
}

func (w *Worker) extract(ctx context.Context, r *run) error {
	if err := preflight.EnsureDiskSpace(r.dir, int64(w.cfg.Engine.MinFreeDiskMB)); err != nil {
		return err
	}
	if w.deps.Loader == nil {
		return services.Wrap(services.ErrConfiguration, "extract", "load", "no document loader configured", nil)
	}
	ex := w.cfg.Steps.Extract
	text, err := w.deps.Loader.Extract(ctx, r.opts.Source, ex.MaxChars)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("No text extracted from document")
	}
	r.text = text
	if err := w.writeOutput(r, ExtractedTextFile, text); err != nil {
		return err
	}

	chunks := chunker.Chunk(text, ex.ChunkSize)
	logging.WithContext(ctx, r.logger).Info("document chunked",
		logging.Int("chars", utf8.RuneCountInString(text)),
		logging.Int("chunks", len(chunks)),
	)
	cleaned, err := CleanChunks(ctx, w.deps.Client, chunks, CleanParams{
		Format:      r.opts.Format,
		Model:       w.model(ex.Model),
		MaxTokens:   ex.MaxTokens,
		Temperature: ex.Temperature,
		Workers:     w.cfg.Engine.CleanWorkers,
	}, r.logger)
	if err != nil {
		return err
	}
	r.cleaned = cleaned
	return w.writeOutput(r, CleanTextFile, cleaned)
}

func (w *Worker) writeScript(ctx context.Context, r *run) error {
	sc := w.cfg.Steps.Script
	script, err := w.deps.Client.Complete(ctx, []llm.Message{
		llm.System(scriptSystemPrompt(r.opts)),
		llm.User(r.cleaned),
	}, w.model(sc.Model), sc.MaxTokens, sc.Temperature)
	if err != nil {
		return fmt.Errorf("generate script: %w", err)
	}
	if strings.TrimSpace(script) == "" {
		return errors.New("generate script: model returned an empty script")
	}
	r.script = script
	return w.writeOutput(r, ScriptFile, script)
}

func (w *Worker) prepareDialogue(ctx context.Context, r *run) error {
	tp := w.cfg.Steps.TTSPrep
	turns, err := w.engine.Generate(ctx, overlap.Request{
		Text:           r.script,
		SystemPrompt:   ttsPrepSystemPrompt(r.opts),
		Model:          w.model(tp.Model),
		MaxTokens:      tp.MaxTokens,
		Temperature:    tp.Temperature,
		WindowSize:     tp.OverlapChunkSize,
		OverlapPercent: tp.OverlapPercent,
	})
	if err != nil {
		return err
	}
	r.turns = turns
	r.outputs = append(r.outputs, "Transcript")
	if err := w.writeOutput(r, TranscriptFile, transcript.FormatLiteral(turns)); err != nil {
		return err
	}
	return w.writeOutput(r, ReadableFile, transcript.FormatReadable(turns))
}

func (w *Worker) synthesize(ctx context.Context, r *run) error {
	if w.deps.Speech == nil {
		return services.Wrap(services.ErrConfiguration, "audio", "synthesize", "no speech endpoint configured", nil)
	}
	audio := w.cfg.Steps.Audio
	voices := VoicePlan{Host: audio.HostVoice, Cohosts: audio.CohostVoices}
	if r.opts.HostVoice != "" {
		voices.Host = r.opts.HostVoice
	}
	if r.opts.CohostVoice != "" {
		voices.Cohosts = []string{r.opts.CohostVoice}
	}
	data, err := SynthesizeDialogue(ctx, w.deps.Speech, r.turns, voices, audio.Model, audio.Format)
	if err != nil {
		return err
	}
	if err := w.writeOutput(r, AudioFile(audio.Format), string(data)); err != nil {
		return err
	}
	r.outputs = append(r.outputs, "Audio")
	return nil
}

func (w *Worker) summarize(ctx context.Context, r *run) error {
	ar := w.cfg.Steps.Artifacts
	summary, err := ExtractSummary(ctx, w.deps.Client, transcript.FormatReadable(r.turns),
		w.model(ar.Model), ar.MaxTokens, ar.Temperature)
	if err != nil {
		return err
	}
	path := OutputPath(r.dir, SummaryJSONFile)
	if err := fileutil.WriteJSONAtomic(path, summary); err != nil {
		return fmt.Errorf("write %s: %w", SummaryJSONFile, err)
	}
	if err := w.writeOutput(r, SummaryMarkdownFile, summary.Markdown()); err != nil {
		return err
	}
	r.outputs = append(r.outputs, "Summary")
	return nil
}

func (w *Worker) writeOutput(r *run, name, content string) error {
	if err := fileutil.WriteFileAtomic(OutputPath(r.dir, name), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (w *Worker) model(override string) string {
	if override = strings.TrimSpace(override); override != "" {
		return override
	}
	return strings.TrimSpace(w.cfg.LLM.Model)
}

func headRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
