package config

const (
	defaultWorkspaceDir       = "~/.local/share/narrator/workspaces"
	defaultLogDir             = "~/.local/share/narrator/logs"
	defaultLogRetentionDays   = 30
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultAPIBind            = "127.0.0.1:7490"
	defaultLLMBaseURL         = "http://localhost:11434/v1"
	defaultLLMModel           = "qwen2.5:7b"
	defaultLLMTitle           = "Narrator"
	defaultLLMTimeoutSeconds  = 600
	defaultExtractMaxTokens   = 1028
	defaultExtractTemperature = 0.7
	defaultExtractChunkSize   = 1000
	defaultExtractMaxChars    = 100000
	defaultScriptMaxTokens    = 8126
	defaultScriptTemperature  = 1.0
	defaultOverlapChunkSize   = 8000
	defaultOverlapPercent     = 10
	defaultArtifactsMaxTokens = 4096
	defaultArtifactsTemp      = 0.4
	defaultAudioModel         = "tts-1"
	defaultAudioFormat        = "mp3"
	defaultHostVoice          = "alloy"
	defaultCohostVoice        = "echo"
	defaultMaxSkip            = 2
	defaultSkipDivisor        = 10
	defaultMinMonologueChars  = 20
	defaultContextTurns       = 3
	defaultPollIntervalMillis = 1500
	defaultMinFreeDiskMB      = 500
	defaultCleanWorkers       = 4
	defaultHistoryLimit       = 20
	defaultNotifyTimeout      = 10
	defaultEventsPrefix       = "narrator"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkspaceDir: defaultWorkspaceDir,
			LogDir:       defaultLogDir,
			APIBind:      defaultAPIBind,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Steps: Steps{
			Extract: Extract{
				MaxTokens:   defaultExtractMaxTokens,
				Temperature: defaultExtractTemperature,
				ChunkSize:   defaultExtractChunkSize,
				MaxChars:    defaultExtractMaxChars,
			},
			Script: ModelStep{
				MaxTokens:   defaultScriptMaxTokens,
				Temperature: defaultScriptTemperature,
			},
			TTSPrep: TTSPrep{
				MaxTokens:        defaultScriptMaxTokens,
				Temperature:      defaultScriptTemperature,
				OverlapChunkSize: defaultOverlapChunkSize,
				OverlapPercent:   defaultOverlapPercent,
			},
			Audio: Audio{
				Model:        defaultAudioModel,
				Format:       defaultAudioFormat,
				HostVoice:    defaultHostVoice,
				CohostVoices: []string{defaultCohostVoice},
			},
			Artifacts: ModelStep{
				MaxTokens:   defaultArtifactsMaxTokens,
				Temperature: defaultArtifactsTemp,
			},
		},
		Heuristics: Heuristics{
			MaxSkip:           defaultMaxSkip,
			SkipDivisor:       defaultSkipDivisor,
			MinMonologueChars: defaultMinMonologueChars,
			ContextTurns:      defaultContextTurns,
		},
		Engine: Engine{
			PollIntervalMillis: defaultPollIntervalMillis,
			MinFreeDiskMB:      defaultMinFreeDiskMB,
			CleanWorkers:       defaultCleanWorkers,
			HistoryLimit:       defaultHistoryLimit,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			JobCompleted:   true,
			JobFailed:      true,
		},
		Events: Events{
			SubjectPrefix: defaultEventsPrefix,
		},
	}
}
