package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger writes JSON lines to a rotated file under logDir and mirrors
// them to stderr. An unknown level falls back to info.
func NewLogger(logDir, level string) (*zap.Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	file := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, "sitemonitor.log"),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(cfg)

	core := zapcore.NewTee(
		zapcore.NewCore(enc, file, lvl),
		zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl),
	)
	return zap.New(core, zap.AddCaller()), nil
}
