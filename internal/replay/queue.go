package replay

import (
	"context"
	"encoding/json"
	"time"

	"offerpay/internal/logger"
	"offerpay/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	queueKey  = "webhook:replay"
	failedKey = "webhook:replay:failed"

	maxTries = 3
)

// Job is one queued replay of a stored webhook record.
type Job struct {
	RecordID int       `json:"record_id"`
	Tries    int       `json:"tries"`
	Created  time.Time `json:"created"`
}

// Reprocessor re-runs settlement for a stored webhook record. Settlement is
// idempotent, so replaying a record any number of times is safe.
type Reprocessor interface {
	Reprocess(ctx context.Context, recordID int) error
}

// Queue is a redis-backed replay queue for webhook records whose settlement
// failed at delivery time.
type Queue struct {
	redis       *redis.Client
	reprocessor Reprocessor
	retryDelay  time.Duration
}

func New(redisAddr string, reprocessor Reprocessor) *Queue {
	return &Queue{
		redis: redis.NewClient(&redis.Options{
			Addr: redisAddr,
		}),
		reprocessor: reprocessor,
		retryDelay:  5 * time.Second,
	}
}

// NewWithClient exists for tests.
func NewWithClient(client *redis.Client, reprocessor Reprocessor) *Queue {
	return &Queue{
		redis:       client,
		reprocessor: reprocessor,
		retryDelay:  5 * time.Second,
	}
}

func (q *Queue) Enqueue(ctx context.Context, recordID int) error {
	job := Job{
		RecordID: recordID,
		Created:  time.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	if err := q.redis.LPush(ctx, queueKey, data).Err(); err != nil {
		logger.Error("failed to enqueue webhook replay", "record_id", recordID, "error", err)
		return err
	}

	logger.Info("webhook replay queued", "record_id", recordID)
	return nil
}

func (q *Queue) Start(ctx context.Context) {
	logger.Info("webhook replay worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("webhook replay worker stopped")
			return
		default:
			q.processNext(ctx)
		}
	}
}

func (q *Queue) processNext(ctx context.Context) {
	result, err := q.redis.BRPop(ctx, 2*time.Second, queueKey).Result()
	if err != nil {
		return
	}
	metrics.ReplayQueueLength.Set(float64(q.QueueLength(ctx)))

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Error("bad replay job payload", "error", err)
		return
	}

	job.Tries++
	if err := q.reprocessor.Reprocess(ctx, job.RecordID); err != nil {
		logger.Error("webhook replay failed",
			"record_id", job.RecordID,
			"attempt", job.Tries,
			"error", err,
		)

		if job.Tries < maxTries {
			time.Sleep(q.retryDelay)
			data, _ := json.Marshal(job)
			q.redis.LPush(context.Background(), queueKey, data)
			return
		}

		q.saveFailed(job, err)
		return
	}

	logger.Info("webhook replay succeeded", "record_id", job.RecordID)
}

func (q *Queue) saveFailed(job Job, cause error) {
	failed := map[string]interface{}{
		"job":   job,
		"error": cause.Error(),
		"time":  time.Now(),
	}
	data, _ := json.Marshal(failed)
	q.redis.LPush(context.Background(), failedKey, data)
	logger.Error("webhook replay moved to failed queue", "record_id", job.RecordID)
}

func (q *Queue) QueueLength(ctx context.Context) int64 {
	length, _ := q.redis.LLen(ctx, queueKey).Result()
	return length
}

func (q *Queue) Close() error {
	return q.redis.Close()
}
