package logging

import (
	"fmt"
	"strings"
)

// LoggerType selects the output format of a handler.
//   - LoggerText: slog.TextHandler.
//   - LoggerJSON: slog.JSONHandler.
//   - LoggerPretty: human-readable, colored when writing to a terminal.
//   - LoggerPrettyNoColor: human-readable without colors.
type LoggerType int

const (
	LoggerText LoggerType = iota
	LoggerJSON
	LoggerPretty
	LoggerPrettyNoColor
)

var loggerTypeNames = map[LoggerType]string{
	LoggerText:          "text",
	LoggerJSON:          "json",
	LoggerPretty:        "pretty",
	LoggerPrettyNoColor: "pretty-no-color",
}

func (t LoggerType) String() string {
	if n, ok := loggerTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("LoggerType(%d)", int(t))
}

func (t LoggerType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *LoggerType) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for k, v := range loggerTypeNames {
		if v == s {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown logger type %q", string(text))
}
