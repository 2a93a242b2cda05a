package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lock  sync.RWMutex
	sugar *zap.SugaredLogger
)

func init() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	sugar = log.Sugar()
}

// Initialize replaces the process logger with one at the provided level.
func Initialize(level zap.AtomicLevel) {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	log, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	lock.Lock()
	if sugar != nil {
		sugar.Sync()
	}
	sugar = log.Sugar()
	lock.Unlock()
}

// Sugar returns the process-wide sugared logger.
func Sugar() *zap.SugaredLogger {
	lock.RLock()
	defer lock.RUnlock()
	return sugar
}
