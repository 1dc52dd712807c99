package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/example/tutorbot/internal/logger"
	"github.com/example/tutorbot/pkg/models"
)

// SlotLayout formats a trigger point as a UTC hour. Slots stay ordered
// when the reference timezone changes; only hour matching is local.
const SlotLayout = "2006-01-02T15"

// Users is the part of the progress store the scheduler needs
type Users interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	ClaimDispatch(ctx context.Context, userID int64, slot string) (bool, error)
}

// Notifier delivers one scheduled lesson to a user
type Notifier interface {
	Notify(ctx context.Context, user models.User) error
}

type Config struct {
	Location        *time.Location
	DispatchTimeout time.Duration
	Workers         int
}

// TickResult summarizes one pass over the users
type TickResult struct {
	Slot        string
	Hour        int
	Users       int
	Due         int
	Dispatched  int
	AlreadySent int
	Failed      int
}

// Scheduler runs the hourly notification pass
type Scheduler struct {
	scheduler *gocron.Scheduler
	users     Users
	notifier  Notifier
	cfg       Config
	now       func() time.Time
	log       *logger.Logger
	flight    singleflight.Group
}

// New creates a scheduler; zero config fields fall back to UTC, 30s and 4 workers
func New(users Users, notifier Notifier, cfg Config, log *logger.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 30 * time.Second
	}
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(cfg.Location),
		users:     users,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
		log:       log,
	}
}

// Start schedules a tick at the top of every hour and runs the scheduler in the background
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.Cron("0 * * * *").SingletonMode().Do(func() {
		if _, err := s.Tick(ctx); err != nil {
			s.log.Error("Scheduled tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule notifications: %w", err)
	}
	s.scheduler.StartAsync()
	s.log.Info("Notification scheduler started", "timezone", s.cfg.Location.String())
	return nil
}

// SetClock replaces time.Now, for tests and replays
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// FormatSlot returns the trigger point t falls in
func FormatSlot(t time.Time) string {
	return t.UTC().Format(SlotLayout)
}

// Tick dispatches lessons to every user whose frequency includes the current
// hour. Concurrent calls share one pass. Per-user failures are logged and
// counted, never returned; only failing to list users is an error.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	v, err, shared := s.flight.Do("tick", func() (interface{}, error) {
		return s.tick(ctx)
	})
	if shared {
		s.log.Debug("Joined in-flight tick")
	}
	if err != nil {
		return TickResult{}, err
	}
	return v.(TickResult), nil
}

func (s *Scheduler) tick(ctx context.Context) (TickResult, error) {
	now := s.now().In(s.cfg.Location)
	result := TickResult{Slot: FormatSlot(now), Hour: now.Hour()}
	log := s.log.With("tick_id", uuid.NewString(), "slot", result.Slot)

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list users: %w", err)
	}
	result.Users = len(users)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Workers)
	count := func(field *int) {
		mu.Lock()
		*field++
		mu.Unlock()
	}

	for _, user := range users {
		if !user.Frequency.Triggers(result.Hour) {
			continue
		}
		result.Due++
		user := user
		g.Go(func() error {
			claimed, err := s.users.ClaimDispatch(ctx, user.ID, result.Slot)
			if err != nil {
				log.Error("Failed to claim dispatch", "user_id", user.ID, "error", err)
				count(&result.Failed)
				return nil
			}
			if !claimed {
				count(&result.AlreadySent)
				return nil
			}

			dctx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
			defer cancel()
			if err := s.notifier.Notify(dctx, user); err != nil {
				log.Warn("Failed to send scheduled lesson",
					"user_id", user.ID, "kind", failureKind(err), "error", err)
				count(&result.Failed)
				return nil
			}
			count(&result.Dispatched)
			return nil
		})
	}
	_ = g.Wait()

	log.Info("Notification tick finished",
		"users", result.Users,
		"due", result.Due,
		"dispatched", result.Dispatched,
		"already_sent", result.AlreadySent,
		"failed", result.Failed,
	)
	return result, nil
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, models.ErrProvider):
		return "provider"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return models.DispatchKindOf(err).String()
	}
}
