package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable. Every problem is reported in
// one joined error so a user can fix the file in a single pass.
func (c *Config) Validate() error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		add("paths.workspace_dir must be set")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		add("llm.model must be set")
	}
	if c.LLM.TimeoutSeconds < 0 {
		add("llm.timeout_seconds must not be negative")
	}

	for _, field := range []struct {
		name  string
		value int
	}{
		{"steps.extract.max_tokens", c.Steps.Extract.MaxTokens},
		{"steps.extract.chunk_size", c.Steps.Extract.ChunkSize},
		{"steps.extract.max_chars", c.Steps.Extract.MaxChars},
		{"steps.script.max_tokens", c.Steps.Script.MaxTokens},
		{"steps.tts_prep.max_tokens", c.Steps.TTSPrep.MaxTokens},
		{"steps.tts_prep.overlap_chunk_size", c.Steps.TTSPrep.OverlapChunkSize},
		{"steps.artifacts.max_tokens", c.Steps.Artifacts.MaxTokens},
		{"heuristics.max_skip", c.Heuristics.MaxSkip},
		{"heuristics.skip_divisor", c.Heuristics.SkipDivisor},
		{"heuristics.context_turns", c.Heuristics.ContextTurns},
		{"engine.poll_interval_ms", c.Engine.PollIntervalMillis},
		{"engine.clean_workers", c.Engine.CleanWorkers},
		{"engine.history_limit", c.Engine.HistoryLimit},
	} {
		if field.value <= 0 {
			add("%s must be positive", field.name)
		}
	}

	for _, field := range []struct {
		name  string
		value float64
	}{
		{"steps.extract.temperature", c.Steps.Extract.Temperature},
		{"steps.script.temperature", c.Steps.Script.Temperature},
		{"steps.tts_prep.temperature", c.Steps.TTSPrep.Temperature},
		{"steps.artifacts.temperature", c.Steps.Artifacts.Temperature},
	} {
		if field.value < 0 || field.value > 2 {
			add("%s must be between 0 and 2", field.name)
		}
	}
	if pct := c.Steps.TTSPrep.OverlapPercent; pct < 0 || pct >= 100 {
		add("steps.tts_prep.overlap_percent must be between 0 and 99")
	}
	if c.Heuristics.MinMonologueChars < 0 {
		add("heuristics.min_monologue_chars must not be negative")
	}
	if c.Engine.MinFreeDiskMB < 0 {
		add("engine.min_free_disk_mb must not be negative")
	}
	if strings.TrimSpace(c.Steps.Audio.HostVoice) == "" {
		add("steps.audio.host_voice must be set")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		add("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level %q is not recognised", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		add("logging.retention_days must not be negative")
	}
	if c.Notifications.RequestTimeout < 0 {
		add("notifications.request_timeout must not be negative")
	}
	if c.Events.NATSURL != "" && !strings.Contains(c.Events.NATSURL, "://") {
		add("events.nats_url must include a scheme, e.g. nats://127.0.0.1:4222")
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("config has %d problem(s): %w", len(problems), errors.Join(problems...))
}
