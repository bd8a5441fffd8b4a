package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	WorkspaceDir string `toml:"workspace_dir"`
	LogDir       string `toml:"log_dir"`
	APIBind      string `toml:"api_bind"`
	APIToken     string `toml:"api_token"`
}

// LLM contains the shared model endpoint settings.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ModelStep holds the sampling parameters of a model-backed step. An empty
// Model uses [llm].model.
type ModelStep struct {
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
}

// Extract configures document extraction and chunk cleaning.
type Extract struct {
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
	ChunkSize   int     `toml:"chunk_size"`
	MaxChars    int     `toml:"max_chars"`
}

// TTSPrep configures dialogue rewriting and the overlap continuation engine.
type TTSPrep struct {
	Model            string  `toml:"model"`
	MaxTokens        int     `toml:"max_tokens"`
	Temperature      float64 `toml:"temperature"`
	OverlapChunkSize int     `toml:"overlap_chunk_size"`
	OverlapPercent   int     `toml:"overlap_percent"`
}

// Audio configures per-turn speech synthesis.
type Audio struct {
	Endpoint     string   `toml:"endpoint"`
	APIKey       string   `toml:"api_key"`
	Model        string   `toml:"model"`
	Format       string   `toml:"format"`
	HostVoice    string   `toml:"host_voice"`
	CohostVoices []string `toml:"cohost_voices"`
}

// Steps groups per-step settings.
type Steps struct {
	Extract   Extract   `toml:"extract"`
	Script    ModelStep `toml:"script"`
	TTSPrep   TTSPrep   `toml:"tts_prep"`
	Audio     Audio     `toml:"audio"`
	Artifacts ModelStep `toml:"artifacts"`
}

// Heuristics tunes the overlap stitching rules. They were tuned against
// specific models and may need adjusting per model.
type Heuristics struct {
	GoodbyePhrases     []string `toml:"goodbye_phrases"`
	ContinuationPhrase string   `toml:"continuation_phrase"`
	MaxSkip            int      `toml:"max_skip"`
	SkipDivisor        int      `toml:"skip_divisor"`
	MinMonologueChars  int      `toml:"min_monologue_chars"`
	ContextTurns       int      `toml:"context_turns"`
}

// Engine configures the job engine.
type Engine struct {
	PollIntervalMillis int `toml:"poll_interval_ms"`
	MinFreeDiskMB      int `toml:"min_free_disk_mb"`
	CleanWorkers       int `toml:"clean_workers"`
	HistoryLimit       int `toml:"history_limit"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
}

// Events configures the optional NATS lifecycle publisher.
type Events struct {
	NATSURL       string `toml:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// Config encapsulates all configuration values for narrator.
//
// Configuration sections by subsystem:
//   - Paths: workspace/log directories and API bind address
//   - LLM: shared model endpoint
//   - Steps: per-step model parameters, chunking and overlap sizes, voices
//   - Heuristics: overlap stitching rules
//   - Engine: poll interval, disk precheck, worker pool size, history cap
//   - Logging: log format, level, and retention
//   - Notifications: ntfy push notification settings
//   - Events: NATS lifecycle events
type Config struct {
	Paths         Paths         `toml:"paths"`
	LLM           LLM           `toml:"llm"`
	Steps         Steps         `toml:"steps"`
	Heuristics    Heuristics    `toml:"heuristics"`
	Engine        Engine        `toml:"engine"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	Events        Events        `toml:"events"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/narrator/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strictErr *toml.StrictMissingError
			if errors.As(err, &strictErr) {
				return nil, "", false, fmt.Errorf("parse config: %s", strictErr.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("narrator.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the workspace and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkspaceDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// WorkspacePath returns the on-disk directory of a workspace.
func (c *Config) WorkspacePath(id string) string {
	return filepath.Join(c.Paths.WorkspaceDir, id)
}

// StorePath returns the sqlite database location.
func (c *Config) StorePath() string {
	return filepath.Join(c.Paths.WorkspaceDir, "narrator.db")
}

// PollInterval returns the poller sleep between snapshots.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalMillis) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the resolved connection settings for a model client.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the shared model connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}

// AudioLLM returns connection settings for speech synthesis. The audio
// endpoint and key fall back to [llm].
func (c *Config) AudioLLM() LLMConfig {
	cfg := c.GetLLM()
	if endpoint := strings.TrimSpace(c.Steps.Audio.Endpoint); endpoint != "" {
		cfg.BaseURL = endpoint
	}
	if key := strings.TrimSpace(c.Steps.Audio.APIKey); key != "" {
		cfg.APIKey = key
	}
	cfg.Model = strings.TrimSpace(c.Steps.Audio.Model)
	return cfg
}
