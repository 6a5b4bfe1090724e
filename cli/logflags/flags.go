package logflags

import (
	"flag"

	"github.com/brimdata/raexec/service/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Flags struct {
	Config logger.Config
	// EngineLevel is the minimum level of the step, retry and executor
	// logs. It only takes effect above Config.Level.
	EngineLevel zapcore.Level
}

func (f *Flags) SetFlags(fs *flag.FlagSet) {
	f.Config.Level = zap.InfoLevel
	f.Config.Mode = logger.FileModeTruncate
	f.EngineLevel = zap.InfoLevel
	fs.Var(&f.Config.Level, "log.level", "logging level")
	fs.Var(&f.EngineLevel, "log.enginelevel", "logging level of query execution (only raises log.level)")
	fs.StringVar(&f.Config.Path, "log.path", "stderr", "path to send logs (values: stderr, stdout, path in file system)")
	fs.Var(&f.Config.Mode, "log.filemode", "logger file write mode (values: append, truncate, rotate)")
	fs.BoolVar(&f.Config.DevMode, "log.devmode", false, "development mode (if enabled dpanic level logs will cause a panic)")
}

func (f *Flags) Open() (*zap.Logger, error) {
	return logger.New(f.Config)
}

// Engine derives the logger the engine and its executor write to.
func (f *Flags) Engine(l *zap.Logger) *zap.Logger {
	if f.EngineLevel <= f.Config.Level {
		return l
	}
	return l.WithOptions(zap.IncreaseLevel(f.EngineLevel))
}
