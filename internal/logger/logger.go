package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"docdetect/internal/config"

	"github.com/rs/zerolog"
)

// Log file names, one per level.
const (
	InfoFile    = "info.log"
	WarningFile = "warning.log"
	ErrorFile   = "error.log"
)

// Logger provides leveled logging (info/warning/error) to files and stdout/stderr.
type Logger struct {
	zl     zerolog.Logger
	logDir string
	files  *levelFiles
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(config *config.Config) *Logger {
	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	files := &levelFiles{
		infoFile:    openLogFile(filepath.Join(config.LogDirectory, InfoFile)),
		warningFile: openLogFile(filepath.Join(config.LogDirectory, WarningFile)),
		errorFile:   openLogFile(filepath.Join(config.LogDirectory, ErrorFile)),
	}

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	zl := zerolog.New(zerolog.MultiLevelWriter(console, files)).
		Level(parseLevel(config.LogLevel)).
		With().
		Timestamp().
		Logger()

	return &Logger{zl: zl, logDir: config.LogDirectory, files: files}
}

// New wraps an arbitrary writer, mostly for tests and one-shot commands.
func New(w io.Writer, level string) *Logger {
	zl := zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// NewConsole logs human-readable lines to stdout only.
func NewConsole(level string) *Logger {
	return New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}, level)
}

// NewDiscard returns a logger that drops everything.
func NewDiscard() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// WithComponent returns a child logger tagged with a component field.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		zl:     l.zl.With().Str("component", component).Logger(),
		logDir: l.logDir,
		files:  l.files,
	}
}

// Debug writes a formatted debug-level log entry.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.zl.Debug().Msgf(format, v...)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.zl.Info().Msgf(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.zl.Warn().Msgf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.zl.Error().Msgf(format, v...)
}

// Fatal writes an error-level entry and exits the process.
func (l *Logger) Fatal(format string, v ...interface{}) {
	l.zl.Fatal().Msgf(format, v...)
}

// LogDir returns the directory holding the per-level files.
func (l *Logger) LogDir() string {
	return l.logDir
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) {
	if l.files == nil {
		return
	}
	if err := l.files.truncate(fileName); err != nil {
		l.Error("Error truncating %s: %v", fileName, err)
		return
	}
	l.Info("File content has been cleared: %s", fileName)
}

// levelFiles routes each entry to the file of its own level.
type levelFiles struct {
	mu          sync.Mutex
	infoFile    *os.File
	warningFile *os.File
	errorFile   *os.File
}

func (f *levelFiles) Write(p []byte) (int, error) {
	return f.WriteLevel(zerolog.InfoLevel, p)
}

func (f *levelFiles) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case level >= zerolog.ErrorLevel:
		return f.errorFile.Write(p)
	case level == zerolog.WarnLevel:
		return f.warningFile.Write(p)
	case level == zerolog.InfoLevel:
		return f.infoFile.Write(p)
	}
	// Debug and trace only reach the console.
	return len(p), nil
}

func (f *levelFiles) truncate(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var file *os.File
	switch name {
	case InfoFile:
		file = f.infoFile
	case WarningFile:
		file = f.warningFile
	case ErrorFile:
		file = f.errorFile
	default:
		return fmt.Errorf("unknown log file %q", name)
	}
	return file.Truncate(0)
}

// openLogFile opens or creates a log file for appending.
func openLogFile(filename string) *os.File {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file %s: %v", filename, err)
	}
	return file
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
