package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

// NamespaceKey is the attribute key that names the subsystem a logger belongs to.
const NamespaceKey = "namespace"

const (
	errorKey = "error"
	traceKey = "trace"
)

// DefaultHandler creates a handler writing to stdout as configured by params.
func DefaultHandler(params Parameters) slog.Handler {
	return NewHandler(os.Stdout, params.Type, params.Level)
}

// NewHandler creates a slog handler of the given type and level writing to w.
func NewHandler(w io.Writer, loggerType LoggerType, level slog.Level) slog.Handler {
	switch loggerType {
	case LoggerText:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case LoggerJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case LoggerPretty:
		colorize := false
		if f, ok := w.(interface{ Fd() uintptr }); ok {
			colorize = isatty.IsTerminal(f.Fd())
		}
		return prettyHandler(w, level, colorize)
	case LoggerPrettyNoColor:
		return prettyHandler(w, level, false)
	default:
		panic(fmt.Sprintf("unsupported logger type %d", loggerType))
	}
}

func prettyHandler(w io.Writer, level slog.Level, colorize bool) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !colorize,
	})
}

// Namespaced returns a logger whose records carry the namespace attribute.
func Namespaced(h slog.Handler, namespace string) *slog.Logger {
	return slog.New(h).With(slog.String(NamespaceKey, namespace))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Error returns an attribute with the error message. A nil error produces an empty attribute,
// which slog handlers skip.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(errorKey, err.Error())
}

// ErrorTrace returns an attribute with the stack trace recorded by github.com/pkg/errors, if there is one.
func ErrorTrace(err error) slog.Attr {
	var st stackTracer
	if !errors.As(err, &st) {
		return slog.Attr{}
	}
	return slog.String(traceKey, fmt.Sprintf("%+v", st.StackTrace()))
}

type typeName struct{ v any }

func (t typeName) MarshalText() ([]byte, error) {
	return fmt.Appendf(nil, "%T", t.v), nil
}

// Type returns an attribute with the dynamic type name of value.
func Type(value any) slog.Attr {
	return slog.Any("type", typeName{v: value})
}
