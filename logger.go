package metaentity

import "go.uber.org/zap"

// Logger is the ambient logging seam the engine calls through when a store
// failure needs to be observed; hook failures are not logged. Failing to
// log must never affect the returned Result — the engine only ever calls
// Logger after it has already decided what Result to return.
type Logger interface {
	Errorw(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
}

// zapLogger adapts *zap.SugaredLogger to Logger, the default structured
// logging backend.
type zapLogger struct{ s *zap.SugaredLogger }

// NewZapLogger wraps a *zap.Logger as a Logger.
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLogger{s: l.Sugar()}
}

func (z *zapLogger) Errorw(msg string, kv ...any) { z.s.Errorw(msg, kv...) }
func (z *zapLogger) Warnw(msg string, kv ...any)  { z.s.Warnw(msg, kv...) }

// noopLogger discards everything; used as Engine's default when no Logger
// is supplied.
type noopLogger struct{}

func (noopLogger) Errorw(string, ...any) {}
func (noopLogger) Warnw(string, ...any)  {}
