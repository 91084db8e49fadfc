package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

var (
	Logger      *slog.Logger
	atomicLevel = new(slog.LevelVar)
)

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a handler writing to w: JSON for format "json", tint otherwise.
// Warnings and errors carry their source location.
func New(w io.Writer, level, format string) *slog.Logger {
	atomicLevel.Set(ParseLevel(level))

	var base slog.Handler
	if strings.EqualFold(format, "json") {
		base = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: atomicLevel})
	} else {
		base = tint.NewHandler(w, &tint.Options{
			Level:       atomicLevel,
			TimeFormat:  time.DateTime,
			NoColor:     !isTerminal(w),
			ReplaceAttr: errorAttr,
		})
	}
	return slog.New(NewConditionalSourceHandler(base, slog.LevelWarn, slog.LevelError))
}

func Init(level, format string) *slog.Logger {
	Logger = New(os.Stdout, level, format)
	slog.SetDefault(Logger)
	return Logger
}

func errorAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == "error" && a.Value.Kind() == slog.KindAny {
		if err, ok := a.Value.Any().(error); ok {
			return tint.Err(err)
		}
	}
	return a
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

func Get() *slog.Logger {
	if Logger == nil {
		return Init("info", "text")
	}
	return Logger
}

func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}
