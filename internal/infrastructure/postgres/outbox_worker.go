package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/courseflow/admission/internal/logger"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	publishBatchSize   = 25
	publishMaxAttempts = 10
	publishConfirmWait = time.Second
	publishTick        = time.Second
	claimLease         = 15 * time.Second
)

type outboxRow struct {
	ID         uuid.UUID `db:"id"`
	MessageID  uuid.UUID `db:"message_id"`
	RoutingKey string    `db:"routing_key"`
	Payload    []byte    `db:"payload"`
	Attempt    int       `db:"attempt"`
}

// retryDelay doubles per attempt from 5s, capped at 15 minutes. The poll
// tick adds enough spread that no extra jitter is needed.
func retryDelay(attempt int) time.Duration {
	d := 5 * time.Second
	for i := 0; i < attempt && d < 15*time.Minute; i++ {
		d *= 2
	}
	if d > 15*time.Minute {
		d = 15 * time.Minute
	}
	return d
}

// StartOutboxPublisher drains the outbox rows staged by Allocate to the
// given exchange. It returns an error if the broker is unreachable at
// startup so the caller can decide whether that is fatal; once running,
// it retries rows with backoff and dead-letters them after
// publishMaxAttempts. Callers gate it behind OUTBOX_ENABLED.
func (r *Repository) StartOutboxPublisher(ctx context.Context, rabbitURL, exchange string) error {
	conn, err := amqp.Dial(rabbitURL)
	if err != nil {
		return fmt.Errorf("outbox: dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("outbox: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("outbox: declare exchange %q: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("outbox: enable publisher confirms: %w", err)
	}

	go func() {
		defer conn.Close()
		defer ch.Close()
		r.publishLoop(ctx, ch, exchange)
	}()
	return nil
}

func (r *Repository) publishLoop(ctx context.Context, ch *amqp.Channel, exchange string) {
	log := logger.Logger.With().Str("component", "outbox_publisher").Logger()

	ticker := time.NewTicker(publishTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopped")
			return
		case <-ticker.C:
			batch, err := r.claimDueOutbox(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("outbox claim failed")
				continue
			}
			for _, row := range batch {
				r.publishOne(ctx, ch, exchange, row, &log)
			}
		}
	}
}

// claimDueOutbox leases a batch of due pending rows in one statement:
// pushing next_retry_at forward marks them in-flight, so a second
// publisher instance (or the next tick) skips them while the network
// publish is still running. SKIP LOCKED keeps concurrent claimers from
// blocking on each other.
func (r *Repository) claimDueOutbox(ctx context.Context) ([]outboxRow, error) {
	var batch []outboxRow
	err := pgxscan.Select(ctx, r.pool, &batch, `
		UPDATE outbox
		SET next_retry_at = NOW() + make_interval(secs => $2)
		WHERE id IN (
			SELECT id FROM outbox
			WHERE status = 'pending' AND next_retry_at <= NOW()
			ORDER BY next_retry_at, occurred_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, message_id, routing_key, payload, attempt
	`, publishBatchSize, claimLease.Seconds())
	return batch, err
}

func (r *Repository) publishOne(ctx context.Context, ch *amqp.Channel, exchange string, row outboxRow, log *zerolog.Logger) {
	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, row.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         row.Payload,
		DeliveryMode: amqp.Persistent,
		MessageId:    row.MessageID.String(),
		AppId:        "courseflow-admission",
	})
	if err != nil {
		r.recordPublishFailure(ctx, row, "publish: "+err.Error(), log)
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, publishConfirmWait)
	acked, err := confirm.WaitContext(waitCtx)
	cancel()
	if err != nil {
		r.recordPublishFailure(ctx, row, "confirm wait: "+err.Error(), log)
		return
	}
	if !acked {
		r.recordPublishFailure(ctx, row, "broker nacked publish", log)
		return
	}

	_, _ = r.pool.Exec(ctx, `UPDATE outbox SET status = 'sent', last_error = NULL WHERE id = $1`, row.ID)
	log.Info().
		Str("message_id", row.MessageID.String()).
		Str("routing_key", row.RoutingKey).
		Msg("outbox published")
}

func (r *Repository) recordPublishFailure(ctx context.Context, row outboxRow, reason string, log *zerolog.Logger) {
	attempt := row.Attempt + 1
	if attempt >= publishMaxAttempts {
		_, _ = r.pool.Exec(ctx, `
			UPDATE outbox SET status = 'dead', attempt = $2, last_error = $3 WHERE id = $1
		`, row.ID, attempt, reason)
		log.Error().
			Str("message_id", row.MessageID.String()).
			Str("routing_key", row.RoutingKey).
			Int("attempt", attempt).
			Str("reason", reason).
			Msg("outbox dead-lettered")
		return
	}

	delay := retryDelay(attempt)
	_, _ = r.pool.Exec(ctx, `
		UPDATE outbox
		SET attempt = $2, next_retry_at = NOW() + make_interval(secs => $3), last_error = $4
		WHERE id = $1
	`, row.ID, attempt, delay.Seconds(), reason)
	log.Warn().
		Str("message_id", row.MessageID.String()).
		Str("routing_key", row.RoutingKey).
		Int("attempt", attempt).
		Dur("retry_in", delay).
		Str("reason", reason).
		Msg("outbox publish failed")
}
