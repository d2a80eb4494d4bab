package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogging builds the run logger: human-readable console output plus
// a timestamped log file per run. Returns the logger and the file path.
func setupLogging(cfg *Config) (*zap.SugaredLogger, string, error) {
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create log dir: %w", err)
	}

	ts := time.Now().Format("20060102_150405")
	logFile := filepath.Join(cfg.LogDir, fmt.Sprintf("%s_%s.log", cfg.LogFilePrefix, ts))

	level := zap.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = zap.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		level,
	)

	// lumberjack keeps writes to the file safe across workers and caps
	// runaway log growth on long polling sessions.
	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    50, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
	})
	fileCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), fileWriter, level)

	logger := zap.New(zapcore.NewTee(consoleCore, fileCore))
	zap.ReplaceGlobals(logger)

	return logger.Sugar(), logFile, nil
}
