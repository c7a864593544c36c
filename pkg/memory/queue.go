package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/engramd/engramd/pkg/logger"
)

type taskKind int

const (
	taskPut taskKind = iota
	taskBump
)

// writeTask is one unit of deferred durable work.
type writeTask struct {
	kind   taskKind
	memory *Memory   // taskPut
	id     string    // taskBump
	at     time.Time // taskBump
}

// WriteQueue drains memory writes to the durable tier asynchronously.
// The save path returns after the cache write; durability follows within
// the queue's retry budget. Access-count bumps ride the same queue so the
// read path never blocks on storage.
type WriteQueue struct {
	store *DurableStore
	log   logger.Logger

	tasks         chan writeTask
	workers       int
	retryAttempts int
	retryDelay    time.Duration

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool

	retries  atomic.Uint64
	failures atomic.Uint64
}

// NewWriteQueue creates a queue with the given depth and worker count.
func NewWriteQueue(store *DurableStore, size, workers, retryAttempts int, retryDelay time.Duration, log logger.Logger) *WriteQueue {
	if size <= 0 {
		size = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}
	return &WriteQueue{
		store:         store,
		log:           log,
		tasks:         make(chan writeTask, size),
		workers:       workers,
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the drain workers.
func (q *WriteQueue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

// Stop drains queued tasks and waits for workers to finish.
func (q *WriteQueue) Stop() {
	q.stopOnce.Do(func() {
		q.stopped.Store(true)
		close(q.stopCh)
	})
	q.wg.Wait()
}

// EnqueuePut schedules a durable write for m.
func (q *WriteQueue) EnqueuePut(m *Memory) error {
	return q.enqueue(writeTask{kind: taskPut, memory: m.Clone()})
}

// EnqueueBump schedules an access-count bump for id.
func (q *WriteQueue) EnqueueBump(id string, at time.Time) error {
	return q.enqueue(writeTask{kind: taskBump, id: id, at: at})
}

func (q *WriteQueue) enqueue(t writeTask) error {
	if q.stopped.Load() {
		return ErrQueueFull
	}
	select {
	case q.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Depth returns the number of queued tasks.
func (q *WriteQueue) Depth() int {
	return len(q.tasks)
}

// Retries returns the total retry count since start.
func (q *WriteQueue) Retries() uint64 {
	return q.retries.Load()
}

// Failures returns the number of tasks dropped after exhausting retries.
func (q *WriteQueue) Failures() uint64 {
	return q.failures.Load()
}

func (q *WriteQueue) worker() {
	defer q.wg.Done()

	for {
		select {
		case t := <-q.tasks:
			q.process(t)
		case <-q.stopCh:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case t := <-q.tasks:
					q.process(t)
				default:
					return
				}
			}
		}
	}
}

// process runs one task with bounded retry. Panics in storage code must
// not take the worker down.
func (q *WriteQueue) process(t writeTask) {
	defer func() {
		if r := recover(); r != nil && q.log != nil {
			q.log.Error("write queue task panicked", "panic", r)
		}
	}()

	delay := q.retryDelay
	attempts := q.retryAttempts + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		err := q.run(t)
		if err == nil {
			return
		}
		if IsNotFound(err) {
			// Bump raced a memory that never landed; nothing to retry.
			return
		}
		if attempt == attempts {
			q.failures.Add(1)
			if q.log != nil {
				q.log.Error("durable write dropped after retries",
					"kind", int(t.kind), "attempts", attempts, "error", err)
			}
			return
		}
		q.retries.Add(1)
		if q.log != nil {
			q.log.Warn("durable write failed, retrying",
				"kind", int(t.kind), "attempt", attempt, "error", err)
		}
		time.Sleep(delay)
		delay *= 2
	}
}

func (q *WriteQueue) run(t writeTask) error {
	ctx := context.Background()
	switch t.kind {
	case taskPut:
		return q.store.Put(ctx, t.memory)
	case taskBump:
		return q.store.BumpAccess(ctx, t.id, t.at)
	}
	return nil
}
