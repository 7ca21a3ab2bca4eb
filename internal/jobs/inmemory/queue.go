package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sokoledger/sokoledger/internal/jobs"
)

// Queue is an in-memory ingestion job queue built on a Go channel. It is safe
// for concurrent use and suitable for single-instance deployments and tests;
// multi-instance deployments should migrate to Cloud Tasks or Pub/Sub.
//
// The queue does not retry: an ingestion job that fails is terminal, and
// re-submitting the same file is safe because ingestion is idempotent.
type Queue struct {
	jobChan   chan *jobs.IngestionJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	workers   int
	closed    bool
}

// NewQueue creates an in-memory queue. bufferSize bounds how many jobs can be
// pending before PublishIngestion blocks; workers bounds how many jobs run
// concurrently.
func NewQueue(bufferSize, workers int) *Queue {
	if workers <= 0 {
		workers = 4
	}
	return &Queue{
		jobChan:   make(chan *jobs.IngestionJob, bufferSize),
		closeChan: make(chan struct{}),
		workers:   workers,
	}
}

// PublishIngestion implements jobs.Publisher.
func (q *Queue) PublishIngestion(ctx context.Context, job *jobs.IngestionJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements jobs.Consumer.
func (q *Queue) Start(ctx context.Context, handler jobs.Handler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			// Publishing is already closed; drain what was accepted so no
			// job stays queued forever.
			for {
				select {
				case job := <-q.jobChan:
					if job == nil {
						return
					}
					_ = handler(ctx, job)
				default:
					return
				}
			}
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			// The handler owns state transitions and error recording;
			// a handler error here has already been written to the
			// job's status record.
			_ = handler(ctx, job)
		}
	}
}

// Stop implements jobs.Consumer. It stops accepting jobs and waits for
// in-flight and already-buffered jobs to complete, bounded by ctx.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements jobs.Publisher.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
