package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeSteps()
	c.normalizeHeuristics()
	c.normalizeLogging()
	c.normalizeEvents()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		c.Paths.WorkspaceDir = defaultWorkspaceDir
	}
	if c.Paths.WorkspaceDir, err = expandPath(c.Paths.WorkspaceDir); err != nil {
		return fmt.Errorf("paths.workspace_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("NARRATOR_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeLLM() {
	if c.LLM.APIKey == "" {
		for _, key := range []string{"NARRATOR_API_KEY", "OPENAI_API_KEY"} {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.LLM.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	c.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(c.LLM.BaseURL), "/")
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeSteps() {
	c.Steps.Extract.Model = strings.TrimSpace(c.Steps.Extract.Model)
	c.Steps.Script.Model = strings.TrimSpace(c.Steps.Script.Model)
	c.Steps.TTSPrep.Model = strings.TrimSpace(c.Steps.TTSPrep.Model)
	c.Steps.Artifacts.Model = strings.TrimSpace(c.Steps.Artifacts.Model)

	audio := &c.Steps.Audio
	audio.Format = strings.ToLower(strings.TrimSpace(audio.Format))
	if audio.Format == "" {
		audio.Format = defaultAudioFormat
	}
	audio.HostVoice = strings.TrimSpace(audio.HostVoice)
	voices := audio.CohostVoices[:0]
	for _, voice := range audio.CohostVoices {
		if trimmed := strings.TrimSpace(voice); trimmed != "" {
			voices = append(voices, trimmed)
		}
	}
	audio.CohostVoices = voices
}

func (c *Config) normalizeHeuristics() {
	phrases := make([]string, 0, len(c.Heuristics.GoodbyePhrases))
	for _, phrase := range c.Heuristics.GoodbyePhrases {
		if trimmed := strings.ToLower(strings.TrimSpace(phrase)); trimmed != "" {
			phrases = append(phrases, trimmed)
		}
	}
	c.Heuristics.GoodbyePhrases = phrases
	c.Heuristics.ContinuationPhrase = strings.TrimSpace(c.Heuristics.ContinuationPhrase)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeEvents() {
	if c.Events.NATSURL == "" {
		if value, ok := os.LookupEnv("NARRATOR_NATS_URL"); ok {
			c.Events.NATSURL = value
		}
	}
	c.Events.NATSURL = strings.TrimSpace(c.Events.NATSURL)
	c.Events.SubjectPrefix = strings.Trim(strings.TrimSpace(c.Events.SubjectPrefix), ".")
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = defaultEventsPrefix
	}
}
