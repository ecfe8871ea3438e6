// Package conf describes the logger's configuration knobs.
package conf

// Level is a logging severity, ordered least to most severe.
type Level string

const (
	TraceLevel Level = "trace"
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
	FatalLevel Level = "fatal"
)

// Formatter selects how log lines are rendered.
type Formatter string

const (
	JSONFormatter    Formatter = "json"
	ConsoleFormatter Formatter = "console"
)

// LogConfig is the logging section of the process configuration document.
type LogConfig struct {
	Level Level `yaml:"level" json:"level"`

	Format Formatter `yaml:"format" json:"format"`

	// FilePath rotates logs through lumberjack when set; empty means stderr only.
	FilePath   string `yaml:"filePath" json:"filePath"`
	MaxSizeMB  int    `yaml:"maxSizeMB" json:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups" json:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays" json:"maxAgeDays"`
}

// DefaultConfig returns the logger configuration used before any process
// configuration has been loaded.
func DefaultConfig() *LogConfig {
	return &LogConfig{
		Level:      InfoLevel,
		Format:     ConsoleFormatter,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 14,
	}
}
