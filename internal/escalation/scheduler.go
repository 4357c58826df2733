package escalation

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/incident-escalator/internal/pkg/ctxlog"
)

// SchedulerConfig contains scheduler configuration.
type SchedulerConfig struct {
	// NumWorkers bounds how many escalations run concurrently.
	NumWorkers int
	// FireTimeout bounds a single escalation, mailer included.
	FireTimeout time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		NumWorkers:  5,
		FireTimeout: time.Minute,
	}
}

// Firer executes a due escalation.
type Firer interface {
	Fire(ctx context.Context, incidentID string) (Outcome, error)
}

// Scheduler runs escalations no earlier than their deadline.
//
// Registrations go onto a deadline-ordered heap. A single timer goroutine
// sleeps until the earliest deadline and hands due entries to a fixed pool of
// workers. There is no cancellation: a resolved or deleted incident is skipped
// by the dispatcher when its entry comes due.
type Scheduler struct {
	config SchedulerConfig
	firer  Firer
	now    func() time.Time

	mu    sync.Mutex
	queue deadlineQueue
	seq   uint64

	wakeCh   chan struct{}
	jobs     chan string
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a new escalation scheduler.
func NewScheduler(config SchedulerConfig, firer Firer) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config.NumWorkers <= 0 {
		config.NumWorkers = defaults.NumWorkers
	}
	if config.FireTimeout <= 0 {
		config.FireTimeout = defaults.FireTimeout
	}

	return &Scheduler{
		config: config,
		firer:  firer,
		now:    time.Now,
		wakeCh: make(chan struct{}, 1),
		jobs:   make(chan string, config.NumWorkers),
		stopCh: make(chan struct{}),
	}
}

// Schedule registers an escalation for incidentID at deadline.
// It never blocks on the deadline or on running escalations.
func (s *Scheduler) Schedule(incidentID string, deadline time.Time) {
	s.mu.Lock()
	s.seq++
	heap.Push(&s.queue, &deadlineEntry{
		incidentID: incidentID,
		deadline:   deadline,
		seq:        s.seq,
	})
	pending := len(s.queue)
	s.mu.Unlock()

	recordScheduled()
	recordPending(pending)

	slog.Debug("escalation scheduled",
		"incident_id", incidentID,
		"deadline", deadline,
		"pending", pending,
	)

	s.wake()
}

// Pending returns the number of escalations waiting for their deadline.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Start launches the timer loop and worker goroutines.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("starting escalation scheduler",
		"workers", s.config.NumWorkers,
		"fire_timeout", s.config.FireTimeout,
		"pending", s.Pending(),
	)

	for i := 0; i < s.config.NumWorkers; i++ {
		s.wg.Add(1)
		go s.work(ctx, i)
	}

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the timer loop and waits for running escalations to finish.
// Entries that are not yet due are dropped; Recover re-registers them on the
// next start.
func (s *Scheduler) Stop() {
	_ = s.Shutdown(context.Background())
}

// Shutdown is Stop bounded by ctx. When ctx ends first it returns ctx.Err()
// and running escalations keep going until their fire timeout.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("escalation scheduler stopped", "dropped", s.Pending())
		return nil
	case <-ctx.Done():
		slog.Warn("escalation scheduler stop timed out", "error", ctx.Err())
		return fmt.Errorf("stop escalation scheduler: %w", ctx.Err())
	}
}

func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	// Workers exit once the loop stops feeding them.
	defer close(s.jobs)

	for {
		due, next, hasNext := s.popDue(s.now())

		for _, incidentID := range due {
			select {
			case s.jobs <- incidentID:
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			}
		}
		if len(due) > 0 {
			continue
		}

		var timerC <-chan time.Time
		var timer *time.Timer
		if hasNext {
			timer = time.NewTimer(next.Sub(s.now()))
			timerC = timer.C
		}

		select {
		case <-timerC:
		case <-s.wakeCh:
		case <-ctx.Done():
		case <-s.stopCh:
		}

		if timer != nil {
			timer.Stop()
		}

		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}
	}
}

// popDue removes every entry whose deadline is not after now. It also returns
// the earliest remaining deadline, if any.
func (s *Scheduler) popDue(now time.Time) ([]string, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []string
	for len(s.queue) > 0 && !s.queue[0].deadline.After(now) {
		entry := heap.Pop(&s.queue).(*deadlineEntry)
		due = append(due, entry.incidentID)
	}

	if len(due) > 0 {
		recordPending(len(s.queue))
	}

	if len(s.queue) == 0 {
		return due, time.Time{}, false
	}
	return due, s.queue[0].deadline, true
}

func (s *Scheduler) work(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for incidentID := range s.jobs {
		s.fire(ctx, workerID, incidentID)
	}
}

func (s *Scheduler) fire(ctx context.Context, workerID int, incidentID string) {
	// In-flight escalations finish on shutdown; only the timeout bounds them.
	fireCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.FireTimeout)
	defer cancel()
	fireCtx = ctxlog.With(fireCtx, "worker", workerID)

	outcome, err := s.firer.Fire(fireCtx, incidentID)
	if err != nil {
		// Already logged by the dispatcher; the worker keeps going.
		ctxlog.FromContext(fireCtx).Debug("escalation finished with error",
			"incident_id", incidentID,
			"outcome", outcome,
			"error", err,
		)
		return
	}

	ctxlog.FromContext(fireCtx).Debug("escalation finished",
		"incident_id", incidentID,
		"outcome", outcome,
	)
}

type deadlineEntry struct {
	incidentID string
	deadline   time.Time
	seq        uint64
}

// deadlineQueue is a min-heap of entries ordered by deadline, then by
// registration order.
type deadlineQueue []*deadlineEntry

func (q deadlineQueue) Len() int { return len(q) }

func (q deadlineQueue) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].seq < q[j].seq
	}
	return q[i].deadline.Before(q[j].deadline)
}

func (q deadlineQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *deadlineQueue) Push(x any) {
	*q = append(*q, x.(*deadlineEntry))
}

func (q *deadlineQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return entry
}
