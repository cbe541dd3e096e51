package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/sourcing/internal/inquiry"
)

const warmupKeyPrefix = "sourcing:warm:reconcile:"

// ReconcileWarmupJob pre-populates reconciliation summaries for active inquiries
// so the first dashboard hit after an import does not pay the full fetch cost.
type ReconcileWarmupJob struct {
	Service *inquiry.Service
	Pool    *pgxpool.Pool
	Cache   *redis.Client
	TTL     time.Duration
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewReconcileWarmupJob wires dependencies for the warmup handler.
func NewReconcileWarmupJob(svc *inquiry.Service, pool *pgxpool.Pool, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *ReconcileWarmupJob {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileWarmupJob{
		Service: svc,
		Pool:    pool,
		Cache:   cache,
		TTL:     ttl,
		Logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes reconcile warmup tasks.
func (j *ReconcileWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil || j.Cache == nil {
		return errors.New("reconcile warmup: handler not configured")
	}
	var payload ReconcileWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	ids := payload.InquiryIDs
	if len(ids) == 0 {
		var err error
		ids, err = j.openInquiryIDs(ctx)
		if err != nil {
			j.Logger.Error("load warmup inquiries", slog.Any("error", err))
			return err
		}
	}
	if len(ids) == 0 {
		j.Logger.Info("no inquiries discovered for warmup")
		return nil
	}

	start := j.clock()
	warmed := 0
	for _, id := range ids {
		if err := j.warmInquiry(ctx, id); err != nil {
			if errors.Is(err, inquiry.ErrNotFound) {
				j.Logger.Warn("warmup inquiry vanished", slog.Int64("inquiry_id", id))
				continue
			}
			j.Logger.Error("warm inquiry", slog.Int64("inquiry_id", id), slog.Any("error", err))
			return err
		}
		warmed++
	}

	j.Logger.Info("completed reconcile warmup",
		slog.Int("inquiries", warmed),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *ReconcileWarmupJob) warmInquiry(ctx context.Context, id int64) error {
	// Bound each inquiry so one pathological snapshot cannot stall the queue.
	warmCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	out, err := j.Service.Reconcile(warmCtx, id)
	if err != nil {
		return err
	}
	body, err := json.Marshal(out.Summaries)
	if err != nil {
		return err
	}
	return j.Cache.Set(warmCtx, fmt.Sprintf("%s%d", warmupKeyPrefix, id), body, j.TTL).Err()
}

func (j *ReconcileWarmupJob) openInquiryIDs(ctx context.Context) ([]int64, error) {
	if j.Pool == nil {
		return nil, nil
	}
	rows, err := j.Pool.Query(ctx, `
		SELECT id
		FROM inquiries
		WHERE status = 'OPEN' AND deleted_at IS NULL
		ORDER BY updated_at DESC
		LIMIT 50`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
