package pcb

import (
	"log/slog"

	"github.com/soypat/utcp/internal"
)

// logger wraps an optional *slog.Logger. A nil-backed logger silently no-ops,
// so attaching one to a [Table] is never mandatory.
type logger struct {
	log *slog.Logger
}

func (l logger) enabled(level slog.Level) bool { return internal.LogEnabled(l.log, level) }

func (l logger) trace(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, internal.LevelTrace, msg, attrs...)
}

func (l logger) debug(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelDebug, msg, attrs...)
}

func (l logger) errorf(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelError, msg, attrs...)
}
