package notify

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/spendhub/internal/app/system/metrics"
	"github.com/dalemusser/spendhub/internal/app/system/timeouts"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Default dispatcher settings.
const (
	DefaultWorkers    = 4
	DefaultQueueSize  = 256
	DefaultRatePerSec = 50
)

// Members lists a group's memberships; the dispatcher uses it to find leaders.
type Members interface {
	ListByGroupAndStatus(ctx context.Context, groupID primitive.ObjectID, status models.MemberStatus) ([]models.GroupMember, error)
}

// Options configures a Dispatcher. Zero values take the defaults; a negative
// RatePerSec disables pacing.
type Options struct {
	Workers    int
	QueueSize  int
	RatePerSec float64
}

// Dispatcher is a bounded queue drained by a fixed pool of workers.
type Dispatcher struct {
	members   Members
	notifiers []Notifier
	log       *zap.Logger
	metrics   *metrics.Metrics
	limiter   *rate.Limiter
	workers   int

	queue    chan Event
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	started  bool
	stopped  bool
	stopOnce sync.Once
}

// NewDispatcher creates a dispatcher. Call Start before publishing.
func NewDispatcher(members Members, logger *zap.Logger, m *metrics.Metrics, opts Options, notifiers ...Notifier) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.RatePerSec == 0 {
		opts.RatePerSec = DefaultRatePerSec
	}
	limit := rate.Inf
	burst := 1
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
		if b := int(opts.RatePerSec); b > 1 {
			burst = b
		}
	}
	return &Dispatcher{
		members:   members,
		notifiers: notifiers,
		log:       logger,
		metrics:   m,
		limiter:   rate.NewLimiter(limit, burst),
		workers:   opts.Workers,
		queue:     make(chan Event, opts.QueueSize),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	d.log.Info("notification dispatcher started",
		zap.Int("workers", d.workers),
		zap.Int("queue_size", cap(d.queue)))
}

// Stop stops accepting events, drains what is queued and waits for the
// workers to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()
		close(d.stopCh)
		d.wg.Wait()
		d.log.Info("notification dispatcher stopped")
	})
}

// Publish queues e without blocking. A full queue or a stopped dispatcher
// drops the event.
func (d *Dispatcher) Publish(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		d.drop(e, "dispatcher stopped")
		return
	}

	select {
	case d.queue <- e:
		d.metrics.NotifyEvent("queued")
		d.metrics.NotifyQueueDepth(len(d.queue))
	default:
		d.drop(e, "queue full")
	}
}

func (d *Dispatcher) drop(e Event, reason string) {
	d.metrics.NotifyEvent("dropped")
	d.log.Warn("notification event dropped",
		zap.String("reason", reason),
		zap.String("type", string(e.Type)),
		zap.String("group_id", e.GroupID.Hex()))
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case e := <-d.queue:
			d.deliver(e)
		case <-d.stopCh:
			for {
				select {
				case e := <-d.queue:
					d.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(e Event) {
	d.metrics.NotifyQueueDepth(len(d.queue))

	ctx, cancel := timeouts.WithTimeout(context.Background(), timeouts.Delivery(), d.log, "notification delivery")
	defer cancel()

	recipients, err := d.Recipients(ctx, e)
	if err != nil {
		d.log.Error("failed to resolve notification recipients",
			zap.Error(err),
			zap.String("group_id", e.GroupID.Hex()),
			zap.String("type", string(e.Type)))
		return
	}

	for _, rid := range recipients {
		if err := d.limiter.Wait(ctx); err != nil {
			d.log.Warn("notification delivery abandoned",
				zap.Error(err),
				zap.String("group_id", e.GroupID.Hex()))
			return
		}
		for _, n := range d.notifiers {
			err := n.Notify(ctx, rid, e)
			d.metrics.NotifyDelivery(n.Name(), err)
			if err != nil {
				d.log.Warn("notifier failed",
					zap.Error(err),
					zap.String("notifier", n.Name()),
					zap.String("recipient_id", rid.Hex()),
					zap.String("type", string(e.Type)))
			}
		}
	}
}

// Recipients returns the ACTIVE owners and admins of the event's group,
// excluding the actor who caused it.
func (d *Dispatcher) Recipients(ctx context.Context, e Event) ([]primitive.ObjectID, error) {
	active, err := d.members.ListByGroupAndStatus(ctx, e.GroupID, models.StatusActive)
	if err != nil {
		return nil, err
	}
	out := make([]primitive.ObjectID, 0, len(active))
	for _, m := range active {
		if !m.Role.IsLeader() || m.UserID == e.ActorID {
			continue
		}
		out = append(out, m.UserID)
	}
	return out, nil
}
