// Package notify persists user notifications off the real-time path.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
	"golang.org/x/sync/errgroup"
)

var ErrQueueFull = errors.New("notification queue full")

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 128
)

// Dispatcher queues notifications and stores them from a fixed pool of
// workers. Enqueueing never blocks; notifications are dropped when the queue
// is full.
type Dispatcher struct {
	store   repository.NotificationRepository
	log     *slog.Logger
	workers int
	queue   chan *domain.Notification
	dropped atomic.Int64
}

func NewDispatcher(store repository.NotificationRepository, workers, queueSize int, log *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		store:   store,
		log:     log,
		workers: workers,
		queue:   make(chan *domain.Notification, queueSize),
	}
}

// NotifyNewMember tells the room owner that member joined for the first time.
// Joins of the owner itself and of the global room are ignored.
func (d *Dispatcher) NotifyNewMember(room *domain.Room, member *domain.User) {
	if room == nil || member == nil || room.IsGlobal() || room.OwnerID == member.ID || room.OwnerID == uuid.Nil {
		return
	}
	if err := d.Enqueue(domain.NewMemberNotification(room, member)); err != nil {
		d.log.Warn("notification dropped",
			slog.String("room", room.Code),
			slog.String("recipient", room.OwnerID.String()),
			sl.Err(err),
		)
	}
}

func (d *Dispatcher) Enqueue(n *domain.Notification) error {
	select {
	case d.queue <- n:
		return nil
	default:
		d.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped reports how many notifications were discarded so far.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run stores queued notifications until ctx is cancelled, then drains what
// is already queued before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			d.work(gctx)
			return nil
		})
	}
	err := g.Wait()

	d.drain()
	return err
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			// a notification already taken off the queue is still stored
			d.persist(context.WithoutCancel(ctx), n)
		}
	}
}

func (d *Dispatcher) drain() {
	ctx := context.Background()
	for {
		select {
		case n := <-d.queue:
			d.persist(ctx, n)
		default:
			return
		}
	}
}

func (d *Dispatcher) persist(ctx context.Context, n *domain.Notification) {
	const op = "notify.dispatcher.store"
	if err := d.store.Create(ctx, n); err != nil {
		d.log.Error("failed to store notification",
			slog.String("op", op),
			slog.String("recipient", n.RecipientID.String()),
			sl.Err(err),
		)
	}
}
