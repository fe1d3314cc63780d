package config

const (
	defaultInboxDir           = "~/.local/share/docpipe/inbox"
	defaultProcessedDir       = "~/.local/share/docpipe/processed"
	defaultLogDir             = "~/.local/share/docpipe/logs"
	defaultAPIBind            = "127.0.0.1:7319"
	defaultPollInterval       = 2
	defaultErrorRetryInterval = 5
	defaultInboxScanInterval  = 2
	defaultMaxAttempts        = 3
	defaultRetryBackoffMillis = 500
	defaultStageTimeout       = 120
	defaultReclaimAfter       = 300
	defaultOCREngine          = "fitz"
	defaultOCRTimeoutSeconds  = 60
	defaultCategory           = "UNCLASSIFIED"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InboxDir:     defaultInboxDir,
			ProcessedDir: defaultProcessedDir,
			LogDir:       defaultLogDir,
			APIBind:      defaultAPIBind,
		},
		Pipeline: Pipeline{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			InboxScanInterval:  defaultInboxScanInterval,
			MaxAttempts:        defaultMaxAttempts,
			RetryBackoffMillis: defaultRetryBackoffMillis,
			StageTimeout:       defaultStageTimeout,
			ReclaimAfter:       defaultReclaimAfter,
		},
		OCR: OCR{
			Engine:         defaultOCREngine,
			TimeoutSeconds: defaultOCRTimeoutSeconds,
		},
		Classification: Classification{
			DefaultCategory: defaultCategory,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Classified:     true,
			Failures:       true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
