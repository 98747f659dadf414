package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the root logger described by config
func New(config Config) (*zap.Logger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	core, err := buildCore(config)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger core: %w", err)
	}

	return zap.New(core, buildOptions(config)...), nil
}

// buildCore builds the logger core
func buildCore(config Config) (zapcore.Core, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := config.buildEncoderConfig()
	var encoder zapcore.Encoder
	if config.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	writer, err := buildWriter(config)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, writer, level)

	if config.Sampling.Enabled {
		core = zapcore.NewSamplerWithOptions(
			core,
			time.Second,
			config.Sampling.Initial,
			config.Sampling.Thereafter,
		)
	}

	return core, nil
}

// buildWriter selects the output, rotating files with lumberjack
func buildWriter(config Config) (zapcore.WriteSyncer, error) {
	switch config.OutputPath {
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}

	if err := os.MkdirAll(filepath.Dir(config.OutputPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	fileWriter := &lumberjack.Logger{
		Filename:   config.OutputPath,
		MaxSize:    config.Rotation.MaxSize,
		MaxBackups: config.Rotation.MaxBackups,
		MaxAge:     config.Rotation.MaxAge,
		Compress:   config.Rotation.Compress,
		LocalTime:  config.Rotation.LocalTime,
	}

	writers := []zapcore.WriteSyncer{zapcore.AddSync(fileWriter)}
	if config.Development {
		writers = append(writers, zapcore.Lock(os.Stdout))
	}
	return zapcore.NewMultiWriteSyncer(writers...), nil
}

// buildOptions builds logger options
func buildOptions(config Config) []zap.Option {
	options := []zap.Option{}

	if config.EnableCaller {
		options = append(options, zap.AddCaller())
	}
	if config.EnableStacktrace {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	if config.Development {
		options = append(options, zap.Development())
	}

	if len(config.InitialFields) > 0 {
		fields := make([]zap.Field, 0, len(config.InitialFields))
		for key, value := range config.InitialFields {
			fields = append(fields, zap.Any(key, value))
		}
		options = append(options, zap.Fields(fields...))
	}

	return options
}

// WithPeer adds the fields identifying a remote node
func WithPeer(logger *zap.Logger, peerID string, address string) *zap.Logger {
	return logger.With(
		zap.String("peer_id", peerID),
		zap.String("address", address),
	)
}

// WithComponent adds component context
func WithComponent(logger *zap.Logger, component string) *zap.Logger {
	return logger.With(zap.String("component", component))
}

// LogIf logs only if error is not nil
func LogIf(logger *zap.Logger, err error, msg string, fields ...zap.Field) {
	if err != nil {
		logger.Error(msg, append(fields, zap.Error(err))...)
	}
}
