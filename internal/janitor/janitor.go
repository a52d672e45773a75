// Package janitor deletes rooms that stayed empty past their expiry deadline.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/internal/repository"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
	"github.com/immxrtalbeast/studyroom/lib/logger/slogcron"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule     = "@every 5m"
	DefaultSweepTimeout = time.Minute
)

// ActivityToucher recomputes a room's expiry from its current membership.
type ActivityToucher interface {
	TouchActivity(ctx context.Context, roomID uuid.UUID) (*domain.Room, error)
	Now() time.Time
}

type SweepResult struct {
	// Deleted rooms were expired and still empty at delete time.
	Deleted int
	// Skipped rooms were expired when listed but became busy or vanished.
	Skipped int
	// Scheduled rooms were empty without a deadline and now have one.
	Scheduled int
}

type Janitor struct {
	rooms    repository.RoomRepository
	presence ActivityToucher
	log      *slog.Logger
	schedule string
	timeout  time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

func New(rooms repository.RoomRepository, presence ActivityToucher, schedule string, timeout time.Duration, log *slog.Logger) *Janitor {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if timeout <= 0 {
		timeout = DefaultSweepTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Janitor{
		rooms:    rooms,
		presence: presence,
		log:      log,
		schedule: schedule,
		timeout:  timeout,
	}
}

// Sweep deletes every expired room that is still empty and gives a deadline
// to empty rooms that have none. Failures on one room do not stop the sweep;
// they are joined into the returned error.
func (j *Janitor) Sweep(ctx context.Context) (SweepResult, error) {
	const op = "janitor.sweep"
	log := j.log.With(slog.String("op", op))

	var (
		result SweepResult
		errs   []error
	)
	now := j.presence.Now()

	expired, err := j.rooms.ListExpired(ctx, now)
	if err != nil {
		return result, fmt.Errorf("%s: list expired: %w", op, err)
	}
	for _, room := range expired {
		deleted, err := j.rooms.DeleteIfExpired(ctx, room.ID, now)
		if err != nil {
			log.Error("failed to delete room", slog.String("room", room.Code), sl.Err(err))
			errs = append(errs, fmt.Errorf("delete %s: %w", room.Code, err))
			continue
		}
		if !deleted {
			result.Skipped++
			continue
		}
		result.Deleted++
		log.Info("room deleted", slog.String("room", room.Code))
	}

	unscheduled, err := j.rooms.ListUnscheduledEmpty(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("list unscheduled: %w", err))
		return result, fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}
	for _, room := range unscheduled {
		if _, err := j.presence.TouchActivity(ctx, room.ID); err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				continue
			}
			log.Error("failed to schedule room expiry", slog.String("room", room.Code), sl.Err(err))
			errs = append(errs, fmt.Errorf("schedule %s: %w", room.Code, err))
			continue
		}
		result.Scheduled++
	}

	log.Debug("sweep finished",
		slog.Int("deleted", result.Deleted),
		slog.Int("skipped", result.Skipped),
		slog.Int("scheduled", result.Scheduled),
	)
	if len(errs) > 0 {
		return result, fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}
	return result, nil
}

// Start schedules Sweep. A sweep still running when the next one is due is
// skipped.
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cron != nil {
		return errors.New("janitor already started")
	}

	logger := slogcron.New(j.log)
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(j.schedule, j.runScheduled); err != nil {
		return fmt.Errorf("janitor schedule %q: %w", j.schedule, err)
	}
	c.Start()
	j.cron = c

	j.log.Info("janitor started", slog.String("schedule", j.schedule))
	return nil
}

func (j *Janitor) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	_, _ = j.Sweep(ctx)
}

// Stop unschedules the sweep and waits for a running one to finish.
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()

	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		j.log.Info("janitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
