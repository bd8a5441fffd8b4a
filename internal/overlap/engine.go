package overlap

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"narrator/internal/logging"
	"narrator/internal/services"
	"narrator/internal/services/llm"
	"narrator/internal/transcript"
)

const repairTemperature = 0.3

// Repair prompts resend an unparseable answer at repairTemperature.
const (
	windowRepairPrompt = "Convert the following text into valid Python syntax as a list of tuples with format: " +
		"[('Speaker 1', 'Text1'), ('Speaker 2', 'Text2'), ...]. Return ONLY the Python list."
	singleRepairPrompt = "Convert the following text into valid Python syntax as a list of tuples with format: " +
		"[('Speaker 1', 'Text1'), ('Speaker 2', 'Text2'), ...]. Return ONLY the Python list, nothing else."
)

const formatInstruction = `
CRITICALLY IMPORTANT: Your output MUST be a Python-style list of tuples, each holding a speaker name and that speaker's line.
Example format: [('Speaker 1', 'This is what Speaker 1 says.'), ('Speaker 2', 'And this is the reply.')]
Escape every quote inside a line so the whole response is one valid list literal.`

const continuationContext = "IMPORTANT: This is a continuation of a previous transcript. The last part was:\n%s\n" +
	"Continue the conversation seamlessly from here, maintaining the same style and tone."

const (
	middleContext = "\n\nIMPORTANT: DO NOT conclude the conversation or say goodbyes. This is the middle of the conversation, not the end."
	finalContext  = "\n\nThis is the final part of the conversation. You may conclude naturally if appropriate."
	middleSystem  = "\n\nIMPORTANT: Since this is not the final part of the conversation, DO NOT include any goodbyes, conclusions, or wrap-ups. The conversation should continue naturally."
)

// Request describes one transcript rewrite.
type Request struct {
	Text           string
	SystemPrompt   string
	Model          string
	MaxTokens      int
	Temperature    float64
	WindowSize     int
	OverlapPercent int
}

// Engine rewrites text into dialogue turns through a Completer, splitting
// inputs longer than the window size into overlapping windows.
type Engine struct {
	client     llm.Completer
	heuristics Heuristics
	goodbye    goodbyeFilter
	logger     *slog.Logger
}

// New constructs an Engine. Zero-valued heuristics fields use the defaults.
func New(client llm.Completer, heuristics Heuristics, logger *slog.Logger) *Engine {
	h := heuristics.withDefaults()
	return &Engine{
		client:     client,
		heuristics: h,
		goodbye:    newGoodbyeFilter(h),
		logger:     logging.NewComponentLogger(logger, "overlap"),
	}
}

// Generate produces the dialogue for req. Inputs no longer than the window
// size take a single completion; longer inputs are windowed.
func (e *Engine) Generate(ctx context.Context, req Request) ([]transcript.Turn, error) {
	if req.WindowSize <= 0 || utf8.RuneCountInString(req.Text) <= req.WindowSize {
		return e.single(ctx, req)
	}
	return e.windowed(ctx, req)
}

func (e *Engine) single(ctx context.Context, req Request) ([]transcript.Turn, error) {
	raw, err := e.client.Complete(ctx, []llm.Message{
		llm.System(req.SystemPrompt),
		llm.User(req.Text),
	}, req.Model, req.MaxTokens, req.Temperature)
	if err != nil {
		return nil, &GenerationError{Err: err}
	}
	turns, err := e.salvage(ctx, raw, req, singleRepairPrompt)
	if err != nil {
		return nil, err
	}
	if turns == nil {
		return nil, &GenerationError{}
	}
	return turns, nil
}

func (e *Engine) windowed(ctx context.Context, req Request) ([]transcript.Turn, error) {
	windows := Windows(req.Text, req.WindowSize, req.OverlapPercent)
	logger := logging.WithContext(ctx, e.logger)
	logger.Info("generating transcript in overlapping windows",
		logging.Int("windows", len(windows)),
		logging.Int("overlap_percent", req.OverlapPercent),
	)

	var combined []transcript.Turn
	for i, window := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		final := i == len(windows)-1
		windowCtx := services.WithWindow(ctx, i+1)

		raw, err := e.client.Complete(windowCtx, e.windowMessages(req, window.Text, combined, i, final),
			req.Model, req.MaxTokens, req.Temperature)
		if err != nil {
			return nil, &GenerationError{Window: i + 1, Windows: len(windows), Err: err}
		}
		turns, err := e.salvage(windowCtx, raw, req, windowRepairPrompt)
		if err != nil {
			return nil, &GenerationError{Window: i + 1, Windows: len(windows), Err: err}
		}
		if turns == nil {
			return nil, &GenerationError{Window: i + 1, Windows: len(windows)}
		}

		if !final {
			turns = e.suppressGoodbyes(turns)
		}
		if i == 0 {
			combined = append(combined, turns...)
			continue
		}
		skip := min(e.heuristics.SkipCount(len(turns)), len(turns))
		combined = append(combined, turns[skip:]...)
	}
	return combined, nil
}

func (e *Engine) windowMessages(req Request, text string, produced []transcript.Turn, index int, final bool) []llm.Message {
	var hint string
	if index > 0 {
		tail := produced[max(0, len(produced)-e.heuristics.ContextTurns):]
		hint = fmt.Sprintf(continuationContext, transcript.FormatLiteral(tail))
	}
	system := req.SystemPrompt + "\n" + formatInstruction
	if final {
		hint += finalContext
	} else {
		hint += middleContext
		system += middleSystem
	}
	return []llm.Message{
		llm.System(system),
		llm.User(text + "\n\n" + hint),
	}
}

// salvage runs the parser cascade over raw, then one repair request, then the
// forced monologue. It returns nil turns when nothing usable remains. Only
// context cancellation is reported as an error; a failed repair call is
// logged and treated as an empty answer.
func (e *Engine) salvage(ctx context.Context, raw string, req Request, prompt string) ([]transcript.Turn, error) {
	logger := logging.WithContext(ctx, e.logger)
	if turns, strategy := transcript.ParseDetailed(raw); len(turns) > 0 {
		logger.Debug("transcript parsed",
			logging.Event("window_parsed"),
			logging.String("strategy", string(strategy)),
			logging.Int("turns", len(turns)),
		)
		return turns, nil
	}

	logger.Warn("parser cascade failed, requesting repair",
		logging.String("raw_head", head(raw, 200)),
	)
	fixed, err := e.client.Complete(ctx, []llm.Message{
		llm.System(prompt),
		llm.User(raw),
	}, req.Model, req.MaxTokens, repairTemperature)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		logging.WarnWithContext(logger, "repair request failed", "window_repair_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "falling back to monologue"),
		)
	default:
		if turns, strategy := transcript.ParseDetailed(fixed); len(turns) > 0 {
			logger.Info("transcript repaired",
				logging.Event("window_repaired"),
				logging.String("strategy", string(strategy)),
				logging.Int("turns", len(turns)),
			)
			return turns, nil
		}
	}

	mono := transcript.Monologue(raw, true)
	if utf8.RuneCountInString(mono) > e.heuristics.MinMonologueChars {
		logging.WarnWithContext(logger, "using monologue fallback", "window_fallback",
			logging.Int("chars", utf8.RuneCountInString(mono)),
			logging.String(logging.FieldImpact, "window attributed to a single speaker"),
		)
		return []transcript.Turn{{Speaker: transcript.DefaultSpeaker, Text: mono}}, nil
	}
	logging.ErrorWithContext(logger, "all parsers failed", "window_failed",
		logging.String("raw_head", head(raw, 300)),
		logging.String(logging.FieldErrorHint, "try a larger model for structured output"),
	)
	return nil, nil
}

func (e *Engine) suppressGoodbyes(turns []transcript.Turn) []transcript.Turn {
	out := make([]transcript.Turn, len(turns))
	for i, turn := range turns {
		text, _ := e.goodbye.apply(turn.Text)
		out[i] = transcript.Turn{Speaker: turn.Speaker, Text: text}
	}
	return out
}

func head(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
