package postgres

import (
	"context"
	"strconv"
	"time"

	"github.com/courseflow/admission/internal/domain"
	"github.com/courseflow/admission/internal/logger"
	"github.com/courseflow/admission/internal/metrics"
)

// StartGaugeRefresh starts a background goroutine that periodically
// republishes the seats_taken/capacity gauges for every course, so
// Prometheus reflects the durable store even when no allocation is
// currently in flight for a given course.
func (r *Repository) StartGaugeRefresh(ctx context.Context, interval time.Duration) {
	go func() {
		log := logger.Logger.With().Str("component", "gauge_refresh").Logger()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		r.refreshGauges(ctx)

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("stopped")
				return
			case <-ticker.C:
				r.refreshGauges(ctx)
			}
		}
	}()
}

func (r *Repository) refreshGauges(ctx context.Context) {
	courses, err := r.ListCourses(ctx, domain.CourseFilter{})
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("gauge refresh: list courses failed")
		return
	}
	for _, c := range courses {
		label := strconv.FormatInt(c.ID, 10)
		metrics.SeatsTaken.WithLabelValues(label).Set(float64(c.SeatsTaken))
		metrics.CourseCapacity.WithLabelValues(label).Set(float64(c.Capacity))
	}
}
