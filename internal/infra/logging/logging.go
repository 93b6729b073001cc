package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"market-genome/internal/config"
)

const service = "market-genome"

// New builds the process logger. Unknown levels fall back to info. Dev
// mode forces console output and disables sampling.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	l := build(os.Stdout, cfg, dev)
	zerolog.SetGlobalLevel(l.GetLevel())
	return l
}

func build(w io.Writer, cfg config.LogConfig, dev bool) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if dev || strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(w).Level(level).With().Timestamp().Str("service", service).Logger()

	if cfg.Sampling && !dev {
		// bursts of chatter are thinned; warnings and errors always pass
		burst := &zerolog.BurstSampler{Burst: 100, Period: time.Second, NextSampler: &zerolog.BasicSampler{N: 100}}
		l = l.Sample(zerolog.LevelSampler{TraceSampler: burst, DebugSampler: burst, InfoSampler: burst})
	}
	return &l
}

type fieldsKey struct{}

// fields are the request scoped IDs carried through context.
type fields struct {
	trace, job, session string
}

func fromCtx(ctx context.Context) fields {
	f, _ := ctx.Value(fieldsKey{}).(fields)
	return f
}

func update(ctx context.Context, fn func(*fields)) context.Context {
	f := fromCtx(ctx)
	fn(&f)
	return context.WithValue(ctx, fieldsKey{}, f)
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return update(ctx, func(f *fields) { f.trace = id })
}

func WithJobID(ctx context.Context, id string) context.Context {
	return update(ctx, func(f *fields) { f.job = id })
}

func WithSessID(ctx context.Context, id string) context.Context {
	return update(ctx, func(f *fields) { f.session = id })
}

// With returns base enriched with whatever IDs ctx carries.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	f := fromCtx(ctx)
	if f == (fields{}) {
		return base
	}
	c := base.With()
	if f.trace != "" {
		c = c.Str("trace_id", f.trace)
	}
	if f.job != "" {
		c = c.Str("job_id", f.job)
	}
	if f.session != "" {
		c = c.Str("session_id", f.session)
	}
	l := c.Logger()
	return &l
}

// TraceDuration logs entry and exit of name at trace level.
//
//	defer logging.TraceDuration(logger, "chatUC.SendMessage")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	if logger.GetLevel() > zerolog.TraceLevel {
		return func() {}
	}
	start := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		logger.Trace().Str("method", name).Dur("duration", time.Since(start)).Msg("finish")
	}
}

// RedactEmail keeps the first letter of the local part and the domain.
func RedactEmail(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at <= 0 {
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}
