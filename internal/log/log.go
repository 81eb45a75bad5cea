// Package log provides structured, colored logging for VaultPass.
//
// Log lines carry addresses, states and error kinds. Mnemonics, passcodes
// and key material are never passed to a logger.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers for different parts of the system.
var (
	Vault   zerolog.Logger
	Trust   zerolog.Logger
	Session zerolog.Logger
	Wallet  zerolog.Logger
	Storage zerolog.Logger
	RPC     zerolog.Logger
	Node    zerolog.Logger
)

var (
	fileMu  sync.Mutex
	logFile *os.File
)

func init() {
	Logger = NewConsoleLogger(os.Stderr, "info")
	initComponentLoggers()
}

// Init initializes the logger with the given configuration.
// Console output goes to stderr, colored or JSON depending on jsonOutput.
// When file is non-empty, logs are also appended to it as JSON, with the
// file readable by the owner only. A previously opened log file is closed.
func Init(level string, jsonOutput bool, file string) error {
	var f *os.File
	if file != "" {
		var err error
		f, err = os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return err
		}
	}

	var console io.Writer = os.Stderr
	if !jsonOutput {
		console = consoleWriter(os.Stderr)
	}
	out := console
	if f != nil {
		out = zerolog.MultiLevelWriter(console, f)
	}
	SetOutput(newLogger(out, level))

	fileMu.Lock()
	prev := logFile
	logFile = f
	fileMu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return nil
}

// NewConsoleLogger creates a console logger, colored when w is a terminal.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(consoleWriter(w), level)
}

// NewJSONLogger creates a structured JSON logger.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(w, level)
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
		NoColor:    !color,
	}
}

// ValidLevel reports whether level is one of the accepted level names.
func ValidLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// parseLevel converts a string level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func initComponentLoggers() {
	Vault = WithComponent("vault")
	Trust = WithComponent("trust")
	Session = WithComponent("session")
	Wallet = WithComponent("wallet")
	Storage = WithComponent("storage")
	RPC = WithComponent("rpc")
	Node = WithComponent("node")
}

// WithComponent returns a logger with a component field.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// SetOutput replaces the global logger and rebuilds the component loggers.
// Tests use it to capture log output.
func SetOutput(l zerolog.Logger) {
	Logger = l
	initComponentLoggers()
}

// Benchmark starts a timer and returns a func that logs the elapsed time
// at debug level.
func Benchmark(name string) func() {
	start := time.Now()
	return func() {
		Logger.Debug().
			Str("operation", name).
			Dur("duration", time.Since(start)).
			Msg("benchmark")
	}
}
