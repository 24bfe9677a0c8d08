package logger

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	sqlInsertPattern = regexp.MustCompile(`(?is)INSERT INTO.*VALUES.*`)
	apiKeyPattern    = regexp.MustCompile(`(['"])[a-zA-Z0-9_\-]{30,}(['"])`)
	bearerPattern    = regexp.MustCompile(`(?i)(bearer\s+|sk-)[a-zA-Z0-9_\-]{16,}`)
)

// New builds the process logger. Every message passes through the redacting core.
func New(level string, development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return NewRedactingCore(core)
	}))
}

// Redact strips SQL insert payloads and secret-looking tokens from s
func Redact(s string) string {
	if strings.Contains(strings.ToLower(s), "insert into") {
		s = sqlInsertPattern.ReplaceAllString(s, "INSERT INTO ... VALUES [REDACTED]")
	}
	s = apiKeyPattern.ReplaceAllString(s, "'[REDACTED]'")
	s = bearerPattern.ReplaceAllString(s, "${1}[REDACTED]")
	return s
}

// SafeError is zap.Error with the message redacted
func SafeError(err error) zap.Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.String("error", Redact(err.Error()))
}

type redactingCore struct {
	zapcore.Core
}

// NewRedactingCore wraps core so that entry messages and string fields are redacted
func NewRedactingCore(core zapcore.Core) zapcore.Core {
	return &redactingCore{Core: core}
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(redactFields(fields))}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = Redact(ent.Message)
	return c.Core.Write(ent, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch {
		case f.Type == zapcore.StringType:
			f.String = Redact(f.String)
		case f.Type == zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok && err != nil {
				f = zap.String(f.Key, Redact(err.Error()))
			}
		}
		out[i] = f
	}
	return out
}
