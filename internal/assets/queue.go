package assets

import (
	"context"
	"sync"
	"time"

	"estuary/internal/logger"
)

const (
	queueCapacity = 256
	workerCount   = 4

	// MaxBatch bounds how many thumbnail jobs a single refresh may hand
	// off, so one huge backfill cannot monopolize the queue.
	MaxBatch = 25

	jobTimeout = 20 * time.Second
)

// Job is one thumbnail to cache for an article.
type Job struct {
	OwnerID   int64
	SourceURL string
}

// ThumbnailQueue caches article thumbnails off the refresh path. The
// queue is bounded and lossy: when full, new jobs are dropped and
// logged, never retried, so a slow image host cannot stall or inflate a
// refresh.
type ThumbnailQueue struct {
	cache *Cache
	jobs  chan Job
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewThumbnailQueue(cache *Cache) *ThumbnailQueue {
	return &ThumbnailQueue{
		cache: cache,
		jobs:  make(chan Job, queueCapacity),
	}
}

// Start launches the worker pool.
func (q *ThumbnailQueue) Start() {
	for i := 0; i < workerCount; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	logger.Info("thumbnail queue started",
		"module", "assets", "action", "start", "resource", "queue", "result", "ok",
		"workers", workerCount, "capacity", queueCapacity)
}

// Stop closes the queue and waits for in-flight jobs to finish. Further
// enqueues become no-ops.
func (q *ThumbnailQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	logger.Info("thumbnail queue stopped",
		"module", "assets", "action", "stop", "resource", "queue", "result", "ok")
}

// Enqueue hands off one job without blocking. Returns false when the job
// was dropped because the queue is full or stopped.
func (q *ThumbnailQueue) Enqueue(job Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- job:
		return true
	default:
		logger.Warn("thumbnail queue full, dropping job",
			"module", "assets", "action", "enqueue", "resource", "queue", "result", "dropped",
			"owner_id", job.OwnerID)
		return false
	}
}

// EnqueueBatch enqueues up to MaxBatch jobs and reports how many were
// accepted.
func (q *ThumbnailQueue) EnqueueBatch(jobs []Job) int {
	if len(jobs) > MaxBatch {
		jobs = jobs[:MaxBatch]
	}
	accepted := 0
	for _, job := range jobs {
		if q.Enqueue(job) {
			accepted++
		}
	}
	return accepted
}

func (q *ThumbnailQueue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		if _, err := q.cache.CacheAsset(ctx, job.OwnerID, job.SourceURL); err != nil {
			logger.Debug("thumbnail caching failed",
				"module", "assets", "action", "cache", "resource", "thumbnail", "result", "failed",
				"owner_id", job.OwnerID, "url", job.SourceURL, "error", err)
		}
		cancel()
	}
}
