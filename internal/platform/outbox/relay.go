package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

type RelayConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxRetries     int
	PublishTimeout time.Duration
	// Retention is how long published events are kept; zero disables purging.
	Retention time.Duration
}

// Relay polls the outbox and publishes pending events. Delivery is
// at-least-once: an event that was written to Kafka but not marked published
// is sent again on the next poll.
type Relay struct {
	store     Store
	publisher Publisher
	cfg       RelayConfig
	logger    zerolog.Logger
	now       func() time.Time
}

func NewRelay(store Store, publisher Publisher, cfg RelayConfig, logger zerolog.Logger) *Relay {
	return &Relay{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "outbox-relay").Logger(),
		now:       time.Now,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info().Dur("poll_interval", r.cfg.PollInterval).Msg("outbox relay started")

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	lastPurge := r.now()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, _, err := r.ProcessBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error().Err(err).Msg("process outbox batch")
			}
			if r.cfg.Retention > 0 && r.now().Sub(lastPurge) >= time.Hour {
				lastPurge = r.now()
				if n, err := r.store.PurgePublished(ctx, lastPurge.Add(-r.cfg.Retention)); err != nil {
					r.logger.Error().Err(err).Msg("purge published outbox events")
				} else if n > 0 {
					r.logger.Info().Int64("deleted", n).Msg("purged published outbox events")
				}
			}
		}
	}
}

// ProcessBatch publishes one batch of pending events and reports how many
// were published and how many failed.
func (r *Relay) ProcessBatch(ctx context.Context) (published, failed int, err error) {
	events, err := r.store.FetchPending(ctx, r.cfg.BatchSize, r.cfg.MaxRetries)
	if err != nil {
		return 0, 0, err
	}
	if len(events) == 0 {
		return 0, 0, nil
	}

	for _, e := range events {
		if ctx.Err() != nil {
			return published, failed, ctx.Err()
		}

		pubCtx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
		perr := r.publisher.Publish(pubCtx, e)
		cancel()

		if perr != nil {
			failed++
			log := r.logger.Warn()
			if e.RetryCount+1 >= r.cfg.MaxRetries {
				log = r.logger.Error()
			}
			log.Err(perr).
				Str("event_id", e.ID.String()).
				Str("event_type", e.EventType).
				Int("retry_count", e.RetryCount+1).
				Msg("publish outbox event")
			if merr := r.store.MarkFailed(ctx, e.ID, perr.Error()); merr != nil {
				r.logger.Error().Err(merr).Str("event_id", e.ID.String()).Msg("mark outbox event failed")
			}
			continue
		}

		if merr := r.store.MarkPublished(ctx, e.ID, r.now().UTC()); merr != nil {
			r.logger.Error().Err(merr).Str("event_id", e.ID.String()).Msg("mark outbox event published")
			continue
		}
		published++
	}

	pending, err := r.store.PendingCount(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("count pending outbox events")
		pending = -1
	}
	log := r.logger.Debug()
	if pending >= r.cfg.BatchSize {
		log = r.logger.Warn()
	}
	log.Int("published", published).Int("failed", failed).Int("pending", pending).Msg("outbox batch processed")
	return published, failed, nil
}
