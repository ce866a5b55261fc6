package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// ParseLevel maps a config string to a LogLevel, defaulting to INFO
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Config holds logger configuration
type Config struct {
	Level      LogLevel
	OutputFile string // Path to log file (empty = stdout only)
	MaxSizeMB  int    // Rotate after this many megabytes (default: 10)
	MaxBackups int    // Number of rotated files to keep (default: 3)
	JSONFormat bool
	AddSource  bool
}

// Logger owns the shared writer behind the slog default logger and any
// logrus loggers handed out by NewLogrus.
type Logger struct {
	slog   *slog.Logger
	config Config
	writer io.Writer
	file   *lumberjack.Logger
	mu     sync.Mutex
}

var (
	globalLogger *Logger
	globalMu     sync.Mutex
)

// Initialize creates the global logger and installs it as slog's default.
// Calling it again replaces the previous logger.
func Initialize(config Config) error {
	logger, err := NewLogger(config)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	globalMu.Lock()
	if globalLogger != nil {
		globalLogger.Close()
	}
	globalLogger = logger
	globalMu.Unlock()

	slog.SetDefault(logger.slog)
	return nil
}

// NewLogger creates a new logger instance with the given configuration
func NewLogger(config Config) (*Logger, error) {
	if config.MaxSizeMB == 0 {
		config.MaxSizeMB = 10
	}
	if config.MaxBackups == 0 {
		config.MaxBackups = 3
	}

	logger := &Logger{config: config}

	writers := []io.Writer{os.Stdout}

	if config.OutputFile != "" {
		dir := filepath.Dir(config.OutputFile)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}

		logger.file = &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			Compress:   true,
		}
		writers = append(writers, logger.file)
	}

	logger.writer = io.MultiWriter(writers...)

	opts := &slog.HandlerOptions{
		Level:     toSlogLevel(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.JSONFormat {
		handler = slog.NewJSONHandler(logger.writer, opts)
	} else {
		handler = slog.NewTextHandler(logger.writer, opts)
	}

	logger.slog = slog.New(handler)
	return logger, nil
}

func toSlogLevel(level LogLevel) slog.Level {
	switch level {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case DEBUG:
		return logrus.DebugLevel
	case WARN:
		return logrus.WarnLevel
	case ERROR:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Slog returns the underlying slog logger
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// NewLogrus returns a logrus logger writing to the same outputs. Text
// formatting is used when stdout is a terminal and JSON was not requested.
func (l *Logger) NewLogrus() *logrus.Logger {
	lr := logrus.New()
	lr.SetOutput(l.writer)
	lr.SetLevel(toLogrusLevel(l.config.Level))

	if l.config.JSONFormat || !term.IsTerminal(int(os.Stdout.Fd())) {
		lr.SetFormatter(&logrus.JSONFormatter{})
	} else {
		lr.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return lr
}

// Close flushes and closes the rotated log file if one is open
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// NewLogrus returns a logrus logger bound to the global logger's outputs, or
// a stock logrus logger when Initialize has not run.
func NewLogrus() *logrus.Logger {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLogger != nil {
		return globalLogger.NewLogrus()
	}
	return logrus.New()
}

// Close closes the global logger
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLogger != nil {
		err := globalLogger.Close()
		globalLogger = nil
		return err
	}
	return nil
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig(debugMode bool) Config {
	level := INFO
	if debugMode {
		level = DEBUG
	}

	return Config{
		Level:      level,
		OutputFile: filepath.Join("logs", "repograph.log"),
		MaxSizeMB:  10,
		MaxBackups: 3,
		JSONFormat: false,
		AddSource:  debugMode,
	}
}
