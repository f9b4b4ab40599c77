package logging

import (
	"flag"
	"fmt"
	"log/slog"
)

type Parameters struct {
	Level slog.Level
	Type  LoggerType

	flagLogLevel   string
	flagLoggerType string
}

// Initialize registers the logging flags on fs, or on the global flag set when fs is nil.
func (p *Parameters) Initialize(fs *flag.FlagSet) {
	if fs == nil {
		fs = flag.CommandLine
	}
	fs.StringVar(&p.flagLogLevel, "log-level", "info",
		"Logging level. Supported values: debug, info, warn, error.")
	fs.StringVar(&p.flagLoggerType, "log-type", "pretty",
		"Logger output format. Supported types: text, json, pretty, pretty-no-color.")
}

// Parse converts the flag values into Level and Type.
func (p *Parameters) Parse() error {
	if err := p.Level.UnmarshalText([]byte(p.flagLogLevel)); err != nil {
		return fmt.Errorf("failed to parse logger parameters: invalid log level: %w", err)
	}
	if err := p.Type.UnmarshalText([]byte(p.flagLoggerType)); err != nil {
		return fmt.Errorf("failed to parse logger parameters: %w", err)
	}
	return nil
}

func (p *Parameters) String() string {
	return fmt.Sprintf("{Level: %s, Type: %s}", p.Level, p.Type)
}
