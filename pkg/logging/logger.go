/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: logger.go
Description: Logging setup for simfuzz. Builds a configured logrus logger with JSON, text or
custom output, timestamped log files in an output directory and an optional syslog sink.
Old log files beyond the retention limit are removed when the logger is closed.
*/

package logging

import (
	"fmt"
	"io"
	"log/syslog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warn"
	LogLevelError   LogLevel = "error"
)

// LogFormat represents the logging format
type LogFormat string

const (
	LogFormatJSON   LogFormat = "json"
	LogFormatText   LogFormat = "text"
	LogFormatCustom LogFormat = "custom"
)

// filePrefix names every log file the logger creates
const filePrefix = "simfuzz_"

// LoggerConfig holds the configuration for the logger
type LoggerConfig struct {
	Level     LogLevel  `json:"level" mapstructure:"level"`
	Format    LogFormat `json:"format" mapstructure:"format"`
	OutputDir string    `json:"output_dir" mapstructure:"output_dir"` // Empty disables file output
	MaxFiles  int       `json:"max_files" mapstructure:"max_files"`
	Timestamp bool      `json:"timestamp" mapstructure:"timestamp"`
	Caller    bool      `json:"caller" mapstructure:"caller"`
	Colors    bool      `json:"colors" mapstructure:"colors"`
	Compress  bool      `json:"compress" mapstructure:"compress"` // Gzip rotated-out files instead of deleting them

	SyslogEnabled bool   `json:"syslog_enabled" mapstructure:"syslog_enabled"`
	SyslogNetwork string `json:"syslog_network" mapstructure:"syslog_network"`
	SyslogAddress string `json:"syslog_address" mapstructure:"syslog_address"`
}

// DefaultConfig returns console-only text logging at info level
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:     LogLevelInfo,
		Format:    LogFormatCustom,
		MaxFiles:  10,
		Timestamp: true,
		Colors:    true,
	}
}

// Validate checks the LoggerConfig for invalid values
func (c *LoggerConfig) Validate() error {
	if c.OutputDir != "" && c.MaxFiles <= 0 {
		return fmt.Errorf("max_files must be positive")
	}
	switch c.Format {
	case LogFormatJSON, LogFormatText, LogFormatCustom:
	default:
		return fmt.Errorf("unsupported log format: %s", c.Format)
	}
	switch c.Level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return fmt.Errorf("unsupported log level: %s", c.Level)
	}
	return nil
}

// Logger owns a logrus logger and the files it writes to
type Logger struct {
	config     *LoggerConfig
	logger     *logrus.Logger
	fileHandle *os.File
	filePath   string
	syslog     *syslog.Writer
	startTime  time.Time
}

// NewLogger creates a new logger instance. A nil config uses DefaultConfig.
func NewLogger(config *LoggerConfig, console io.Writer) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging configuration: %w", err)
	}
	if console == nil {
		console = os.Stderr
	}

	l := &Logger{
		config:    config,
		logger:    logrus.New(),
		startTime: time.Now(),
	}

	if err := l.setup(console); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}
	return l, nil
}

// setup configures the logger with the given configuration
func (l *Logger) setup(console io.Writer) error {
	level, err := logrus.ParseLevel(string(l.config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.logger.SetLevel(level)
	l.logger.SetReportCaller(l.config.Caller)
	l.logger.SetFormatter(l.formatter())

	writers := []io.Writer{console}

	if l.config.OutputDir != "" {
		file, err := l.openLogFile()
		if err != nil {
			return err
		}
		writers = append(writers, file)
	}

	if l.config.SyslogEnabled {
		writer, err := syslog.Dial(l.config.SyslogNetwork, l.config.SyslogAddress, syslog.LOG_INFO|syslog.LOG_USER, "simfuzz")
		if err != nil {
			return fmt.Errorf("failed to connect to syslog: %w", err)
		}
		l.syslog = writer
		writers = append(writers, writer)
	}

	l.logger.SetOutput(io.MultiWriter(writers...))

	if l.filePath != "" {
		l.logger.WithFields(logrus.Fields{
			"start_time": l.startTime.Format(time.RFC3339),
			"log_file":   l.filePath,
			"level":      l.config.Level,
			"format":     l.config.Format,
		}).Debug("Logging initialized")
	}
	return nil
}

func (l *Logger) formatter() logrus.Formatter {
	prettyCaller := func(f *runtime.Frame) (string, string) {
		return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
	}

	switch l.config.Format {
	case LogFormatJSON:
		return &logrus.JSONFormatter{
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: prettyCaller,
		}
	case LogFormatText:
		return &logrus.TextFormatter{
			FullTimestamp:    l.config.Timestamp,
			TimestampFormat:  time.RFC3339,
			ForceColors:      l.config.Colors,
			DisableColors:    !l.config.Colors,
			CallerPrettyfier: prettyCaller,
		}
	default:
		return &CampaignFormatter{CustomFormatter: CustomFormatter{
			Timestamp: l.config.Timestamp,
			Caller:    l.config.Caller,
			Colors:    l.config.Colors,
		}}
	}
}

// openLogFile creates the timestamped log file for this run
func (l *Logger) openLogFile() (*os.File, error) {
	if err := os.MkdirAll(l.config.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	name := fmt.Sprintf("%s%s.log", filePrefix, l.startTime.Format("2006-01-02_15-04-05"))
	path := filepath.Join(l.config.OutputDir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	l.fileHandle = file
	l.filePath = path
	return file, nil
}

// Close flushes log files and applies the retention limit
func (l *Logger) Close() error {
	l.logger.SetOutput(io.Discard)
	if l.syslog != nil {
		l.syslog.Close()
		l.syslog = nil
	}
	if l.fileHandle != nil {
		l.fileHandle.Close()
		l.fileHandle = nil
	}
	if l.config.OutputDir == "" {
		return nil
	}

	manager := NewLogManager(l.config.OutputDir, l.config.MaxFiles, l.config.Compress)
	if err := manager.CleanupOldLogs(); err != nil {
		return fmt.Errorf("failed to cleanup log files: %w", err)
	}
	return nil
}

// GetLogger returns the underlying logrus logger
func (l *Logger) GetLogger() *logrus.Logger {
	return l.logger
}

// FilePath returns the log file of this run, or "" without file output
func (l *Logger) FilePath() string {
	return l.filePath
}
