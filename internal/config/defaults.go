package config

const (
	defaultDataDir           = "~/.local/share/pipewatch"
	defaultContentDir        = "~/.local/share/pipewatch/uploads"
	defaultLogDir            = "~/.local/share/pipewatch/logs"
	defaultBind              = "127.0.0.1:3000"
	defaultAccessTTLMinutes  = 15
	defaultRefreshTTLHours   = 168
	defaultBcryptCost        = 10
	defaultMinPasswordLength = 6
	defaultMaxPasswordLength = 20
	defaultMaxUploadMiB      = 50
	defaultPython            = "python3"
	defaultClassifierTimeout = 120
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			ContentDir: defaultContentDir,
			LogDir:     defaultLogDir,
			Bind:       defaultBind,
		},
		Auth: Auth{
			AccessTTLMinutes:  defaultAccessTTLMinutes,
			RefreshTTLHours:   defaultRefreshTTLHours,
			BcryptCost:        defaultBcryptCost,
			MinPasswordLength: defaultMinPasswordLength,
			MaxPasswordLength: defaultMaxPasswordLength,
		},
		Upload: Upload{
			MaxSizeMiB: defaultMaxUploadMiB,
		},
		Classifier: Classifier{
			Python:         defaultPython,
			TimeoutSeconds: defaultClassifierTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
