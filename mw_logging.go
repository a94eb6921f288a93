package datagate

import (
	"context"

	"go.uber.org/zap"
)

// Logging is a Middleware writing one debug line per hook.
type Logging struct {
	logger *zap.Logger
}

var _ Middleware = (*Logging)(nil)

// NewLogging creates a logging middleware.
func NewLogging(logger *zap.Logger) *Logging {
	return &Logging{logger: orNop(logger)}
}

// Name implements Named.
func (l *Logging) Name() string { return "logging" }

// Prologue implements Middleware.
func (l *Logging) Prologue(ctx context.Context, tag ActionTag, changes ChangeSet) *Status {
	l.log(ctx, "prologue", tag, changes)
	return nil
}

// Epilogue implements Middleware.
func (l *Logging) Epilogue(ctx context.Context, tag ActionTag, changes ChangeSet) *Status {
	l.log(ctx, "epilogue", tag, changes)
	return nil
}

func (l *Logging) log(ctx context.Context, hook string, tag ActionTag, changes ChangeSet) {
	if ce := l.logger.Check(zap.DebugLevel, hook); ce != nil {
		fields := []zap.Field{
			zap.Stringer("action", tag),
			zap.Int("changes", len(changes)),
			zap.Strings("models", changes.Models()),
		}
		if id := GetRequestID(ctx); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}
		if actor := ActorFrom(ctx); actor != nil {
			fields = append(fields, zap.String("actor", actor.Username))
		}
		ce.Write(fields...)
	}
}
