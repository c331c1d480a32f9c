package config

const (
	defaultDataDir           = "~/.local/share/courier/data"
	defaultStagingDir        = "~/.local/share/courier/staging"
	defaultLogDir            = "~/.local/share/courier/logs"
	defaultAPIBind           = "127.0.0.1:7491"
	defaultCheckInterval     = 60
	defaultCompression       = "default"
	defaultTelegramBaseURL   = "https://api.telegram.org"
	defaultRequestTimeout    = 30
	defaultMessagesPerSecond = 1.0
	defaultUploadsPerMinute  = 20
	defaultRetryAttempts     = 3
	defaultRetryDelaySeconds = 5
	defaultAggregatorTimeout = 5
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Watch: Watch{
			CheckInterval:    defaultCheckInterval,
			SizeCacheEnabled: true,
		},
		Archive: Archive{
			Compression: defaultCompression,
		},
		Telegram: Telegram{
			BaseURL:        defaultTelegramBaseURL,
			RequestTimeout: defaultRequestTimeout,
		},
		Limits: Limits{
			MessagesPerSecond: defaultMessagesPerSecond,
			UploadsPerMinute:  defaultUploadsPerMinute,
			RetryAttempts:     defaultRetryAttempts,
			RetryDelaySeconds: defaultRetryDelaySeconds,
		},
		Aggregator: Aggregator{
			RequestTimeout: defaultAggregatorTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
