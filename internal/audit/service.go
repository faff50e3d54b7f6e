package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"taskplanner-admin/internal/metrics"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service dispatches audit events to a Repository on a background worker.
//
// Notify never blocks: when the buffer is full the event is dropped and counted.
// Close drains what is already queued.
type Service struct {
	repo  Repository
	clock func() time.Time
	log   *slog.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan Event
	done    chan struct{}
	dropped atomic.Int64

	writeTimeout time.Duration
}

const DefaultBufferSize = 256

func NewService(repo Repository, log *slog.Logger, bufferSize int) *Service {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		repo:         repo,
		clock:        time.Now,
		log:          log,
		queue:        make(chan Event, bufferSize),
		done:         make(chan struct{}),
		writeTimeout: 5 * time.Second,
	}
	go s.run()
	return s
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) prepare(e Event) (Event, error) {
	if e.Action == "" || e.Status == "" {
		return Event{}, ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return e, nil
}

// Append writes synchronously. Prefer Notify on request paths.
func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	e, err := s.prepare(e)
	if err != nil {
		return err
	}
	return s.repo.Append(ctx, e)
}

// Notify queues e for the background worker. Invalid events are logged and discarded.
func (s *Service) Notify(_ context.Context, e Event) {
	prepared, err := s.prepare(e)
	if err != nil {
		s.log.Warn("audit event rejected", "action", e.Action, "err", err)
		return
	}
	e = prepared

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop(e)
		return
	}
	select {
	case s.queue <- e:
	default:
		s.drop(e)
	}
}

func (s *Service) drop(e Event) {
	s.dropped.Add(1)
	metrics.AuditDroppedTotal.Inc()
	s.log.Warn("audit event dropped", "action", e.Action, "status", e.Status)
}

// Dropped reports how many events were discarded since start.
func (s *Service) Dropped() int64 { return s.dropped.Load() }

func (s *Service) run() {
	defer close(s.done)
	for e := range s.queue {
		if s.repo == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		err := s.repo.Append(ctx, e)
		cancel()
		if err != nil {
			metrics.AuditWriteErrorsTotal.Inc()
			s.log.Error("audit write failed", "action", e.Action, "resource", e.Resource, "err", err)
		}
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
