package config

const (
	defaultDataDir             = "~/.local/share/papercast"
	defaultLogDir              = "~/.local/share/papercast/logs"
	defaultAPIBind             = "127.0.0.1:8642"
	defaultPapersPerEpisode    = 3
	defaultMaxRetries          = 3
	defaultRetryBaseDelayMS    = 1000
	defaultStageTimeoutSeconds = 300
	defaultEpisodeTitlePrefix  = "Daily Papers"
	defaultSummaryLanguage     = "en"
	defaultHFBaseURL           = "https://huggingface.co/api/daily_papers"
	defaultHFRequestTimeout    = 30
	defaultGeminiBaseURL       = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel         = "gemini-1.5-pro"
	defaultGeminiTimeout       = 120
	defaultTTSBaseURL          = "https://texttospeech.googleapis.com/v1"
	defaultTTSVoice            = "en-US-Neural2-D"
	defaultTTSLanguageCode     = "en-US"
	defaultTTSSpeakingRate     = 1.0
	defaultTTSTimeout          = 300
	defaultCacheTTLSeconds     = 3600
	defaultNtfyRequestTimeout  = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Pipeline: Pipeline{
			PapersPerEpisode:  defaultPapersPerEpisode,
			MaxRetries:        defaultMaxRetries,
			RetryBaseDelayMS:  defaultRetryBaseDelayMS,
			StageTimeout:      defaultStageTimeoutSeconds,
			EpisodeTitle:      defaultEpisodeTitlePrefix,
			SummaryLanguage:   defaultSummaryLanguage,
			SummarizeParallel: defaultPapersPerEpisode,
		},
		HuggingFace: HuggingFace{
			BaseURL:        defaultHFBaseURL,
			RequestTimeout: defaultHFRequestTimeout,
		},
		Gemini: Gemini{
			BaseURL:        defaultGeminiBaseURL,
			Model:          defaultGeminiModel,
			TimeoutSeconds: defaultGeminiTimeout,
		},
		TTS: TTS{
			BaseURL:        defaultTTSBaseURL,
			Voice:          defaultTTSVoice,
			LanguageCode:   defaultTTSLanguageCode,
			SpeakingRate:   defaultTTSSpeakingRate,
			TimeoutSeconds: defaultTTSTimeout,
		},
		Repository: Repository{
			CacheTTLSeconds: defaultCacheTTLSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			Runs:           true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
