package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"crewhall/src/lib"
	"crewhall/src/storage"
)

const housekeepingTimeout = time.Minute

// Housekeeper deletes approved and rejected join requests once they are
// older than the retention window. Pending requests are never touched.
type Housekeeper struct {
	requests  *storage.JoinRequestRepo
	retention time.Duration
	metrics   *lib.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewHousekeeper(requests *storage.JoinRequestRepo, retention time.Duration, metrics *lib.Metrics, logger *slog.Logger) *Housekeeper {
	return &Housekeeper{
		requests:  requests,
		retention: retention,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *Housekeeper) PurgeProcessedRequests(ctx context.Context) (int64, error) {
	cutoff := h.now().Add(-h.retention).Unix()
	purged, err := h.requests.PurgeProcessedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	h.metrics.Add("join_requests_purged_total", uint64(purged))
	return purged, nil
}

// Schedule registers the purge on c. The caller starts and stops c.
func (h *Housekeeper) Schedule(c *cron.Cron, schedule string) (cron.EntryID, error) {
	return c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), housekeepingTimeout)
		defer cancel()

		purged, err := h.PurgeProcessedRequests(ctx)
		if err != nil {
			h.logger.Error("purge processed join requests failed", "error", err)
			return
		}
		if purged > 0 {
			h.logger.Info("purged processed join requests", "count", purged)
		}
	})
}
