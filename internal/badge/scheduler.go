// Package badge offloads sync-state recomputation to a background
// consumer so mutators never pay for XMP re-analysis inline.
package badge

import (
	"context"
	"sync"
	"time"

	"photo-catalog/internal/logging"
	"photo-catalog/internal/metrics"
)

// Refresher recomputes and persists the sync state of one record.
type Refresher interface {
	RefreshSyncState(ctx context.Context, id int64) error
}

const (
	defaultQueueSize = 1024
	itemDelay        = 10 * time.Millisecond
	shutdownGrace    = 5 * time.Second
	refreshTimeout   = 60 * time.Second
)

// EventKind distinguishes per-record completions from batch completions.
type EventKind string

const (
	EventRecordDone EventKind = "record"
	EventBatchDone  EventKind = "batch"
)

// Event is emitted after each refreshed record and after each batch.
type Event struct {
	Kind   EventKind
	ID     int64 // record events only
	Reason string
	Err    error // record events only
}

type batch struct {
	reason    string
	remaining int
}

type item struct {
	id int64
	b  *batch
}

// Scheduler runs a single consumer over a bounded FIFO of record ids.
// Producers call Refresh; duplicate ids already in the queue are
// dropped, as are requests arriving when the queue is full.
type Scheduler struct {
	refresher  Refresher
	invalidate func(id int64)

	queue  chan item
	events chan Event

	mu      sync.Mutex
	pending map[int64]bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a Scheduler. invalidate is called synchronously on the
// producer side for every requested record (sync cache invalidation);
// it may be nil.
func New(refresher Refresher, invalidate func(id int64)) *Scheduler {
	return &Scheduler{
		refresher:  refresher,
		invalidate: invalidate,
		queue:      make(chan item, defaultQueueSize),
		events:     make(chan Event, defaultQueueSize),
		pending:    make(map[int64]bool),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Events exposes the completion stream. Events are dropped rather than
// blocking the consumer when nobody drains the channel.
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

// Start launches the consumer.
func (s *Scheduler) Start() {
	go s.run()
}

// Request enqueues a single record with an unnamed reason. Implements
// the notifier interface used by sync mutators.
func (s *Scheduler) Request(id int64) {
	s.Refresh([]int64{id}, "mutation")
}

// Refresh invalidates and enqueues a batch of records. Deduplication
// happens against in-queue entries; enqueue order is preserved within
// the batch.
func (s *Scheduler) Refresh(ids []int64, reason string) {
	b := &batch{reason: reason}

	s.mu.Lock()
	var accepted []int64
	for _, id := range ids {
		if s.invalidate != nil {
			s.invalidate(id)
		}
		if s.pending[id] {
			metrics.BadgeDroppedTotal.Inc()
			continue
		}
		s.pending[id] = true
		accepted = append(accepted, id)
	}
	b.remaining = len(accepted)
	s.mu.Unlock()

	if len(accepted) == 0 {
		s.emit(Event{Kind: EventBatchDone, Reason: reason})
		return
	}

	for _, id := range accepted {
		select {
		case s.queue <- item{id: id, b: b}:
		default:
			logging.Warn("badge queue full, dropping refresh for record %d", id)
			metrics.BadgeDroppedTotal.Inc()
			s.mu.Lock()
			delete(s.pending, id)
			s.mu.Unlock()
			s.finishBatchItem(b)
		}
	}
	metrics.BadgeQueueDepth.Set(float64(len(s.queue)))
}

func (s *Scheduler) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}

func (s *Scheduler) finishBatchItem(b *batch) {
	s.mu.Lock()
	b.remaining--
	last := b.remaining == 0
	s.mu.Unlock()
	if last {
		s.emit(Event{Kind: EventBatchDone, Reason: b.reason})
	}
}

func (s *Scheduler) run() {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		case it := <-s.queue:
			s.process(it)
			metrics.BadgeQueueDepth.Set(float64(len(s.queue)))

			// Pace the consumer so foreground work keeps priority.
			select {
			case <-s.stop:
				return
			case <-time.After(itemDelay):
			}
		}
	}
}

func (s *Scheduler) process(it item) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	err := s.refresher.RefreshSyncState(ctx, it.id)
	cancel()

	s.mu.Lock()
	delete(s.pending, it.id)
	s.mu.Unlock()

	status := "success"
	if err != nil {
		status = "error"
		logging.Warn("badge refresh for record %d failed: %v", it.id, err)
	}
	metrics.BadgeRefreshesTotal.WithLabelValues(status).Inc()

	s.emit(Event{Kind: EventRecordDone, ID: it.id, Reason: it.b.reason, Err: err})
	s.finishBatchItem(it.b)
}

// Stop signals the consumer and waits up to the shutdown grace period.
// Queued records that have not been processed are abandoned; persisted
// state remains whatever the last completed refresh wrote.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })

	select {
	case <-s.done:
	case <-time.After(shutdownGrace):
		logging.Warn("badge scheduler did not stop within %v", shutdownGrace)
	}
}
