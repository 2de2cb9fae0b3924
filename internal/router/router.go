// Package router is the per-bot fair queue between message ingress
// and agent handlers.
//
// Messages for one conversation key are handled in enqueue order by a
// single serial worker; distinct keys run concurrently. Both bounds
// are hard: at most MaxChannels live keys (least-recently-active idle
// queue is evicted to make room) and at most QueueCapacity pending
// items per key (enqueue waits briefly, then fails typed).
package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultMaxChannels   = 100
	DefaultQueueCapacity = 64
	DefaultEnqueueWait   = time.Second
)

var (
	// ErrSaturated means the key limit is reached and no idle queue
	// could be evicted.
	ErrSaturated = errors.New("router saturated")
	// ErrBacklogged means the key's queue stayed full past the
	// bounded enqueue wait.
	ErrBacklogged = errors.New("channel backlogged")
	// ErrClosed means the router is shutting down.
	ErrClosed = errors.New("router closed")
)

// Handler runs one queued message. The context is cancelled on hard
// shutdown so in-flight engine streams stop with the router.
type Handler func(ctx context.Context) error

// Options bound the router. Zero values take the defaults.
type Options struct {
	MaxChannels   int
	QueueCapacity int
	EnqueueWait   time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxChannels <= 0 {
		o.MaxChannels = DefaultMaxChannels
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}
	if o.EnqueueWait <= 0 {
		o.EnqueueWait = DefaultEnqueueWait
	}
	return o
}

// item is one queued unit of work for a conversation key.
type item struct {
	run      Handler
	enqueued time.Time
}

// channelQueue owns one conversation key: a bounded item channel and
// one serial worker goroutine.
type channelQueue struct {
	key   string
	items chan item
	stop  chan struct{}

	lastActivity atomic.Int64 // unix nanos, updated on dequeue and completion
	inFlight     atomic.Bool
	// enqueuers holding a reference between map lookup and channel
	// send; an evicted queue would strand their item.
	refs atomic.Int32
}

func (q *channelQueue) markActive() {
	q.lastActivity.Store(time.Now().UnixNano())
}

// idle reports whether the queue can be evicted: nothing queued,
// nothing running, no enqueue in progress.
func (q *channelQueue) idle() bool {
	return len(q.items) == 0 && !q.inFlight.Load() && q.refs.Load() == 0
}

// Router routes items into per-key serial queues.
type Router struct {
	opts Options

	mu     sync.Mutex
	queues map[string]*channelQueue
	closed bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a router with the given bounds.
func New(opts Options) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		opts:    opts.withDefaults(),
		queues:  make(map[string]*channelQueue),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Enqueue queues run under key, creating the key's queue on first
// use. When the key table is full it evicts the least-recently-active
// idle queue or fails with ErrSaturated. When the key's queue is full
// it waits up to EnqueueWait and then fails with ErrBacklogged.
func (r *Router) Enqueue(ctx context.Context, key string, run Handler) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	q, ok := r.queues[key]
	if !ok {
		if len(r.queues) >= r.opts.MaxChannels && !r.evictIdleLocked() {
			r.mu.Unlock()
			return ErrSaturated
		}
		q = r.spawnQueueLocked(key)
	}
	q.refs.Add(1)
	r.mu.Unlock()
	defer q.refs.Add(-1)

	it := item{run: run, enqueued: time.Now()}
	select {
	case q.items <- it:
		return nil
	default:
	}

	wait := time.NewTimer(r.opts.EnqueueWait)
	defer wait.Stop()
	select {
	case q.items <- it:
		return nil
	case <-wait.C:
		return ErrBacklogged
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spawnQueueLocked creates the queue and its serial worker. Caller
// holds r.mu.
func (r *Router) spawnQueueLocked(key string) *channelQueue {
	q := &channelQueue{
		key:   key,
		items: make(chan item, r.opts.QueueCapacity),
		stop:  make(chan struct{}),
	}
	q.markActive()
	r.queues[key] = q
	r.wg.Add(1)
	go r.workerLoop(q)
	return q
}

// evictIdleLocked removes the least-recently-active idle queue.
// Caller holds r.mu. Returns false when every queue is busy.
func (r *Router) evictIdleLocked() bool {
	var victim *channelQueue
	var oldest int64
	for _, q := range r.queues {
		if !q.idle() {
			continue
		}
		if at := q.lastActivity.Load(); victim == nil || at < oldest {
			victim, oldest = q, at
		}
	}
	if victim == nil {
		return false
	}
	delete(r.queues, victim.key)
	close(victim.stop)
	slog.Debug("router: evicted idle channel", "key", victim.key)
	return true
}

// workerLoop drains one key serially. Handler errors and panics are
// contained per item so the queue keeps moving.
func (r *Router) workerLoop(q *channelQueue) {
	defer r.wg.Done()
	for {
		select {
		case <-q.stop:
			return
		case <-r.baseCtx.Done():
			return
		case it := <-q.items:
			q.markActive()
			q.inFlight.Store(true)
			r.runItem(q, it)
			q.inFlight.Store(false)
			q.markActive()
		}
	}
}

func (r *Router) runItem(q *channelQueue, it item) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("router: handler panic", "key", q.key, "panic", rec)
		}
	}()
	if err := it.run(r.baseCtx); err != nil {
		slog.Error("router: handler failed", "key", q.key, "error", err)
	}
}

// WaitChannelIdle blocks until key's queue is empty with no handler
// in flight, or ctx expires. A missing key counts as idle.
func (r *Router) WaitChannelIdle(ctx context.Context, key string) error {
	return r.waitIdle(ctx, func() bool {
		r.mu.Lock()
		q, ok := r.queues[key]
		r.mu.Unlock()
		return !ok || q.idle()
	})
}

// WaitAllIdle blocks until every queue is idle or ctx expires.
func (r *Router) WaitAllIdle(ctx context.Context) error {
	return r.waitIdle(ctx, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, q := range r.queues {
			if !q.idle() {
				return false
			}
		}
		return true
	})
}

func (r *Router) waitIdle(ctx context.Context, idle func() bool) error {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		if idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

// Shutdown refuses new work, drains queued items within ctx, and on
// ctx expiry hard-cancels in-flight handlers. Workers are joined
// before returning; the drain error (if any) is reported.
func (r *Router) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	drainErr := r.WaitAllIdle(ctx)
	if drainErr != nil {
		slog.Warn("router: drain window expired, cancelling in-flight work", "error", drainErr)
		r.cancel()
	}

	r.mu.Lock()
	for _, q := range r.queues {
		close(q.stop)
	}
	r.mu.Unlock()

	r.wg.Wait()
	r.cancel()
	return drainErr
}

// QueueStat describes one key's queue for monitoring.
type QueueStat struct {
	Pending      int       `json:"pending"`
	InFlight     bool      `json:"in_flight"`
	LastActivity time.Time `json:"last_activity"`
}

// Snapshot is a point-in-time view of the router.
type Snapshot struct {
	Channels     map[string]QueueStat `json:"channels"`
	TotalPending int                  `json:"total_pending"`
}

// Snapshot reports per-key pending counts and the router-wide total.
func (r *Router) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{Channels: make(map[string]QueueStat, len(r.queues))}
	for key, q := range r.queues {
		stat := QueueStat{
			Pending:      len(q.items),
			InFlight:     q.inFlight.Load(),
			LastActivity: time.Unix(0, q.lastActivity.Load()),
		}
		snap.Channels[key] = stat
		snap.TotalPending += stat.Pending
		if stat.InFlight {
			snap.TotalPending++
		}
	}
	return snap
}
