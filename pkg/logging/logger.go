package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ANSI color codes
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
	White  = "\033[37m"
	Gray   = "\033[90m"

	BrightRed     = "\033[91m"
	BrightGreen   = "\033[92m"
	BrightYellow  = "\033[93m"
	BrightBlue    = "\033[94m"
	BrightMagenta = "\033[95m"
	BrightCyan    = "\033[96m"
	BrightWhite   = "\033[97m"
)

// Verbosity values accepted by LOG_LEVEL.
const (
	VerbosityInfo = "info"
	VerbosityAll  = "all"
)

// ColoredLogger wraps zap.Logger with colored, component-tagged output
type ColoredLogger struct {
	*zap.Logger
	enableColors bool
}

// Component represents different parts of the relay for color coding
type Component string

const (
	ComponentGeneral Component = "GENERAL"
	ComponentRelay   Component = "RELAY"
	ComponentBus     Component = "BUS"
	ComponentSweep   Component = "SWEEP"
	ComponentHTTP    Component = "HTTP"
)

func getComponentColor(component Component) string {
	switch component {
	case ComponentGeneral:
		return Yellow
	case ComponentRelay:
		return BrightGreen
	case ComponentBus:
		return BrightCyan
	case ComponentSweep:
		return BrightMagenta
	case ComponentHTTP:
		return BrightBlue
	default:
		return White
	}
}

func getLevelColor(level zapcore.Level) string {
	switch level {
	case zapcore.DebugLevel:
		return Gray
	case zapcore.InfoLevel:
		return BrightWhite
	case zapcore.WarnLevel:
		return BrightYellow
	case zapcore.ErrorLevel:
		return BrightRed
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return Red
	default:
		return White
	}
}

// LevelForVerbosity maps the relay verbosity setting onto a zap level.
// "all" enables per-message debug lines; anything else logs at info.
func LevelForVerbosity(verbosity string) zapcore.Level {
	if strings.EqualFold(strings.TrimSpace(verbosity), VerbosityAll) {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

func coloredConsoleEncoder(enableColors bool) zapcore.Encoder {
	config := zap.NewDevelopmentEncoderConfig()

	// HH:MM:SS only
	config.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		timeStr := t.Format("15:04:05")
		if enableColors {
			enc.AppendString(fmt.Sprintf("%s%s%s", Dim, timeStr, Reset))
		} else {
			enc.AppendString(timeStr)
		}
	}

	config.EncodeLevel = func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		levelMap := map[zapcore.Level]string{
			zapcore.DebugLevel: "D",
			zapcore.InfoLevel:  "I",
			zapcore.WarnLevel:  "W",
			zapcore.ErrorLevel: "E",
		}
		levelStr := levelMap[level]
		if levelStr == "" {
			levelStr = "?"
		}
		if enableColors {
			enc.AppendString(fmt.Sprintf("%s%s%s%s", getLevelColor(level), Bold, levelStr, Reset))
		} else {
			enc.AppendString(levelStr)
		}
	}

	config.EncodeCaller = func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		file := caller.File
		if idx := strings.LastIndex(file, "/"); idx >= 0 {
			file = file[idx+1:]
		}
		file = strings.TrimSuffix(file, ".go")
		if enableColors {
			enc.AppendString(fmt.Sprintf("%s%s%s", Dim, file, Reset))
		} else {
			enc.AppendString(file)
		}
	}

	return zapcore.NewConsoleEncoder(config)
}

// NewColoredLogger creates a logger writing to stdout at the given verbosity
func NewColoredLogger(verbosity string, enableColors bool) (*ColoredLogger, error) {
	return NewWriterLogger(os.Stdout, verbosity, enableColors)
}

// NewWriterLogger creates a logger writing to w. Tests use it with a buffer.
func NewWriterLogger(w io.Writer, verbosity string, enableColors bool) (*ColoredLogger, error) {
	if w == nil {
		return nil, fmt.Errorf("log writer is nil")
	}
	core := zapcore.NewCore(
		coloredConsoleEncoder(enableColors),
		zapcore.AddSync(w),
		LevelForVerbosity(verbosity),
	)
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	return &ColoredLogger{
		Logger:       logger,
		enableColors: enableColors,
	}, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *ColoredLogger {
	return &ColoredLogger{Logger: zap.NewNop()}
}

func (l *ColoredLogger) tag(component Component, msg string) string {
	if l.enableColors {
		return fmt.Sprintf("%s[%s]%s %s", getComponentColor(component), component, Reset, msg)
	}
	return fmt.Sprintf("[%s] %s", component, msg)
}

// Component-specific logging methods
func (l *ColoredLogger) ComponentInfo(component Component, msg string, fields ...zap.Field) {
	l.Info(l.tag(component, msg), fields...)
}

func (l *ColoredLogger) ComponentWarn(component Component, msg string, fields ...zap.Field) {
	l.Warn(l.tag(component, msg), fields...)
}

func (l *ColoredLogger) ComponentError(component Component, msg string, fields ...zap.Field) {
	l.Error(l.tag(component, msg), fields...)
}

func (l *ColoredLogger) ComponentDebug(component Component, msg string, fields ...zap.Field) {
	l.Debug(l.tag(component, msg), fields...)
}

// DebugEnabled reports whether debug lines will be written. Hot paths check
// it before building fields.
func (l *ColoredLogger) DebugEnabled() bool {
	return l.Core().Enabled(zapcore.DebugLevel)
}

// StdLogger returns a standard library logger that writes through this
// logger at error level, for http.Server.ErrorLog.
func (l *ColoredLogger) StdLogger(component Component) *log.Logger {
	std, err := zap.NewStdLogAt(l.Logger.WithOptions(zap.AddCallerSkip(-1)).Named(strings.ToLower(string(component))), zapcore.ErrorLevel)
	if err != nil {
		return zap.NewStdLog(l.Logger)
	}
	return std
}
