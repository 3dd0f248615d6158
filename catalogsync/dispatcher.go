package catalogsync

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/maresto/inventory_backend/config"
	"github.com/sirupsen/logrus"
)

var ErrQueueClosed = errors.New("catalog sync queue is closed")

// Dispatcher hands a task off for asynchronous processing.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) error
}

// TaskFunc processes one task; ProcessTask in production.
type TaskFunc func(ctx context.Context, task Task) (Result, error)

// LocalQueue is an in-process buffered queue drained by a fixed set of workers.
type LocalQueue struct {
	tasks   chan Task
	process TaskFunc
	workers int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewLocalQueue(workers int, size int, process TaskFunc) *LocalQueue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 64
	}
	if process == nil {
		process = ProcessTask
	}
	return &LocalQueue{
		tasks:   make(chan Task, size),
		process: process,
		workers: workers,
	}
}

// Start launches the workers. They exit once Close has drained the queue.
func (q *LocalQueue) Start(ctx context.Context) {
	logger := config.GetLogger()
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(worker int) {
			defer q.wg.Done()
			for task := range q.tasks {
				result, err := q.process(ctx, task)
				if err != nil {
					config.LogError(logger, "catalogsync", "LocalQueue", "worker "+strconv.Itoa(worker), task.BranchId, err)
					continue
				}
				logger.WithFields(logrus.Fields{"module": "catalogsync", "branchId": task.BranchId, "result": result}).Debug("task processed")
			}
		}(i)
	}
}

// Dispatch enqueues without blocking the caller longer than ctx allows.
func (q *LocalQueue) Dispatch(ctx context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (q *LocalQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	q.wg.Wait()
}

// PubSubDispatcher publishes tasks to a topic consumed by PubSubPushHandler.
type PubSubDispatcher struct {
	topic string
}

func NewPubSubDispatcher(ctx context.Context, topic string, createTopic bool) (*PubSubDispatcher, error) {
	if topic == "" {
		topic = "catalog-sync"
	}
	if createTopic {
		client, err := config.GetClient(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := config.CreateTopicIfNotExists(ctx, client, topic); err != nil {
			return nil, err
		}
	}
	return &PubSubDispatcher{topic: topic}, nil
}

func (d *PubSubDispatcher) Dispatch(ctx context.Context, task Task) error {
	_, err := config.PublishJSON(ctx, d.topic, task, map[string]string{
		"branch_id": strconv.Itoa(task.BranchId),
		"reason":    task.Reason,
	})
	return err
}

// NewDispatcher builds the dispatcher selected by settings. The returned func releases it.
func NewDispatcher(ctx context.Context, s config.Settings) (Dispatcher, func(), error) {
	switch s.Catalog.Transport {
	case TransportPubSub:
		d, err := NewPubSubDispatcher(ctx, s.Catalog.Topic, s.Catalog.CreateTopic)
		if err != nil {
			return nil, nil, err
		}
		return d, config.ClosePubSub, nil
	case TransportLocal, "":
		q := NewLocalQueue(s.Catalog.Workers, s.Catalog.QueueSize, ProcessTask)
		q.Start(context.WithoutCancel(ctx))
		return q, q.Close, nil
	default:
		return nil, nil, errors.New("unknown catalog transport " + strconv.Quote(s.Catalog.Transport))
	}
}
