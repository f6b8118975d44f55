package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// pinnedLevelCore wraps a zapcore.Core and replaces its level check with a fixed level.
type pinnedLevelCore struct {
	zapcore.Core

	// level is the minimum log level accepted by this core.
	level zapcore.Level
}

// Enabled reports whether l passes the pinned level.
func (c *pinnedLevelCore) Enabled(l zapcore.Level) bool {
	return c.level.Enabled(l)
}

// Check adds the core to ce when the entry passes the pinned level,
// ignoring the level of the wrapped core.
//
//nolint:gocritic // AddCore requires ent to be passed by value.
func (c *pinnedLevelCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}

	return ce
}

// With keeps the pinned level on child cores.
//
//nolint:ireturn,nolintlint // Returning zapcore.Core is intended for zap integration.
func (c *pinnedLevelCore) With(fields []zapcore.Field) zapcore.Core {
	return &pinnedLevelCore{
		Core:  c.Core.With(fields),
		level: c.level,
	}
}

// WithLevel pins a derived logger to lvl regardless of the global level.
// The dry-run sender uses it so that emails it swallows are always visible.
//
//nolint:ireturn,nolintlint // Returning zap.Option is intended for zap integration.
func WithLevel(lvl zapcore.Level) zap.Option {
	return zap.WrapCore(
		func(core zapcore.Core) zapcore.Core {
			return &pinnedLevelCore{Core: core, level: lvl}
		})
}
