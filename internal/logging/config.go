package logging

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Config defines all settings for logging.
type Config struct {
	// Level is the minimum log level that will be captured.
	Level string `yaml:"level"`

	// Format specifies the log output format. Can be "json" or "console".
	Format string `yaml:"format"`

	// OutputPath is the destination for log output.
	// "stdout", "stderr", or a file path.
	OutputPath string `yaml:"output_path"`

	// Rotation applies when OutputPath is a file.
	Rotation RotationConfig `yaml:"rotation"`

	// EnableCaller includes the file and line of the log call.
	EnableCaller bool `yaml:"enable_caller"`

	// EnableStacktrace attaches stack traces to error logs.
	EnableStacktrace bool `yaml:"enable_stacktrace"`

	// Development enables colored console output and panics on DPanic.
	Development bool `yaml:"development"`

	// Sampling configures log sampling to reduce log volume.
	Sampling SamplingConfig `yaml:"sampling"`

	// InitialFields are added to all log entries.
	InitialFields map[string]interface{} `yaml:"initial_fields"`
}

// RotationConfig defines the settings for log file rotation.
type RotationConfig struct {
	// MaxSize is the maximum size in megabytes of the log file before it gets rotated.
	MaxSize int `yaml:"max_size_mb"`

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int `yaml:"max_age_days"`

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `yaml:"max_backups"`

	// Compress determines if the rotated log files should be compressed.
	Compress bool `yaml:"compress"`

	// LocalTime uses local time for formatting timestamps in rotated files.
	LocalTime bool `yaml:"local_time"`
}

// SamplingConfig defines the settings for log sampling.
type SamplingConfig struct {
	Enabled    bool `yaml:"enabled"`
	Initial    int  `yaml:"initial"`
	Thereafter int  `yaml:"thereafter"`
}

// DefaultConfig returns a new Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		OutputPath: "stdout",
		Rotation: RotationConfig{
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 10,
			Compress:   true,
			LocalTime:  true,
		},
		EnableCaller:     true,
		EnableStacktrace: true,
		Sampling: SamplingConfig{
			Enabled:    false,
			Initial:    100,
			Thereafter: 100,
		},
		InitialFields: map[string]interface{}{
			"service": "mate",
		},
	}
}

// Validate checks the level and format
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	switch c.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q", c.Format)
	}
	if c.OutputPath == "" {
		return fmt.Errorf("log output path is required")
	}
	return nil
}

// buildEncoderConfig creates a zapcore.EncoderConfig from the logger config.
func (c Config) buildEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if c.Development && c.Format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if !c.EnableCaller {
		encoderConfig.CallerKey = zapcore.OmitKey
	}
	if !c.EnableStacktrace {
		encoderConfig.StacktraceKey = zapcore.OmitKey
	}

	return encoderConfig
}
