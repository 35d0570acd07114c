// Package log configures the zap logger used by the CLI and the layers.
package log

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format is the output format of the logger.
type Format string

const (
	FormatJSON    Format = "JSON"
	FormatConsole Format = "Console"
)

// Formats is a list of log formats.
type Formats []Format

func (f Formats) String() string {
	names := make([]string, len(f))
	for i, format := range f {
		names[i] = string(format)
	}
	return strings.Join(names, ", ")
}

// AvailableFormats lists the accepted values of --log-format.
var AvailableFormats = Formats{FormatJSON, FormatConsole}

// Options holds the logging flags.
type Options struct {
	Debug  bool
	Format Format
}

// NewDefaultOptions returns console logging without debug output.
func NewDefaultOptions() Options {
	return Options{Format: FormatConsole}
}

// AddFlags binds the options to a flag set.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Debug, "log-debug", o.Debug, "Enables more verbose logging.")
	fs.StringVar((*string)(&o.Format), "log-format", string(o.Format), "Log format. Available are: "+AvailableFormats.String())
}

// Validate checks the configured format.
func (o *Options) Validate() error {
	for _, f := range AvailableFormats {
		if strings.EqualFold(string(f), string(o.Format)) {
			return nil
		}
	}
	return fmt.Errorf("invalid log format %q, available are: %s", o.Format, AvailableFormats)
}

// New creates a logger writing to stderr. Synthesized artifacts go to files
// and stdout, so log lines never mix with command output.
func New(debug bool, format Format) *zap.Logger {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if debug {
		level.SetLevel(zap.DebugLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(string(format), string(FormatJSON)) {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	opts := []zap.Option{zap.AddCaller()}
	if debug {
		opts = append(opts, zap.Development())
	}
	return zap.New(zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level), opts...)
}

// NewFromOptions creates a sugared logger from Options.
func NewFromOptions(o Options) *zap.SugaredLogger {
	return New(o.Debug, o.Format).Sugar()
}
