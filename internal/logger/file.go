package logger

import (
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fallbacks for file output when the config leaves a field unset.
const (
	DefaultLogFile    = "logs/request-mailer.log"
	DefaultMaxSizeMB  = 100
	DefaultMaxFiles   = 5
	DefaultMaxAgeDays = 14
)

// FileConfig describes the rotating dispatch log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxFiles   int
	MaxAgeDays int
}

func (c FileConfig) withDefaults() FileConfig {
	if c.Path == "" {
		c.Path = DefaultLogFile
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = DefaultMaxSizeMB
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = DefaultMaxFiles
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = DefaultMaxAgeDays
	}
	return c
}

// NewFileWriter opens a size-rotated log file. Rotated files are gzipped,
// named in local time and pruned by count and by age. Close it on shutdown.
func NewFileWriter(cfg FileConfig) *lumberjack.Logger {
	cfg = cfg.withDefaults()
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		MaxAge:     cfg.MaxAgeDays,
		LocalTime:  true,
		Compress:   true,
	}
}
