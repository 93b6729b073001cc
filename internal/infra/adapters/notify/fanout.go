package notify

import (
	"context"

	"github.com/rs/zerolog"

	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
	"market-genome/internal/infra/logging"
)

var (
	_ adapter.Notifier = (*Fanout)(nil)
	_ adapter.Notifier = (*NoopNotifier)(nil)
)

// Fanout reports the primary notifier's result. Secondary notifiers
// (operator alerts) are best-effort and only logged on failure.
type Fanout struct {
	primary   adapter.Notifier
	secondary []adapter.Notifier
	log       *zerolog.Logger
}

func NewFanout(primary adapter.Notifier, logger *zerolog.Logger, secondary ...adapter.Notifier) *Fanout {
	return &Fanout{primary: primary, secondary: secondary, log: logger}
}

func (f *Fanout) DeliverReport(ctx context.Context, to, brand string, art model.Artifact) error {
	err := f.primary.DeliverReport(ctx, to, brand, art)
	for _, s := range f.secondary {
		if serr := s.DeliverReport(ctx, to, brand, art); serr != nil {
			logging.With(ctx, f.log).Warn().Err(serr).Msg("secondary notifier failed")
		}
	}
	return err
}

func (f *Fanout) NotifyFailure(ctx context.Context, to, brand, reason string) error {
	err := f.primary.NotifyFailure(ctx, to, brand, reason)
	for _, s := range f.secondary {
		if serr := s.NotifyFailure(ctx, to, brand, reason); serr != nil {
			logging.With(ctx, f.log).Warn().Err(serr).Msg("secondary notifier failed")
		}
	}
	return err
}

// NoopNotifier logs instead of sending; used when SMTP is not configured.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	return &NoopNotifier{log: logger}
}

func (n *NoopNotifier) DeliverReport(ctx context.Context, to, brand string, art model.Artifact) error {
	logging.With(ctx, n.log).Info().Str("to", logging.RedactEmail(to)).Str("brand", brand).Str("url", art.URL).Msg("[noop-notify] report ready")
	return nil
}

func (n *NoopNotifier) NotifyFailure(ctx context.Context, to, brand, reason string) error {
	logging.With(ctx, n.log).Info().Str("to", logging.RedactEmail(to)).Str("brand", brand).Str("reason", reason).Msg("[noop-notify] job failed")
	return nil
}
