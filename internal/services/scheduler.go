package services

import (
	"context"
	"fmt"
	"time"

	"daily-album-backend/internal/daybucket"
	"daily-album-backend/internal/push"
	"daily-album-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// NextMidnight returns the first midnight after now in loc.
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	now = now.In(loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return midnight.AddDate(0, 0, 1)
}

// NextFixedHour returns the next occurrence of hour:00 after now in loc:
// today if the hour is still ahead, otherwise tomorrow.
func NextFixedHour(now time.Time, loc *time.Location, hour int) time.Time {
	now = now.In(loc)
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, loc)
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// Scheduler runs the time-driven pushes: the midnight memory reveal, the
// fixed-hour daily reminder and the periodic reminder.
type Scheduler struct {
	notify    *NotifyService
	dailyRepo *repository.DailyPostRepository

	loc              *time.Location
	reminderHour     int
	reminderInterval time.Duration
	nowFunc          func() time.Time
}

// NewScheduler creates a new scheduler
func NewScheduler(notify *NotifyService, dailyRepo *repository.DailyPostRepository, loc *time.Location, reminderHour int, reminderInterval time.Duration) *Scheduler {
	return &Scheduler{
		notify:           notify,
		dailyRepo:        dailyRepo,
		loc:              loc,
		reminderHour:     reminderHour,
		reminderInterval: reminderInterval,
		nowFunc:          time.Now,
	}
}

// Start launches the scheduler loops. They stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.runAt(ctx, "midnight memory", func(now time.Time) time.Time {
		return NextMidnight(now, s.loc)
	}, s.fireMidnightMemory)

	go s.runAt(ctx, "daily reminder", func(now time.Time) time.Time {
		return NextFixedHour(now, s.loc, s.reminderHour)
	}, s.fireDailyReminder)

	if s.reminderInterval > 0 {
		go s.runEvery(ctx, s.reminderInterval, s.firePeriodicReminder)
	}

	log.Info().
		Str("timezone", s.loc.String()).
		Int("reminder_hour", s.reminderHour).
		Dur("reminder_interval", s.reminderInterval).
		Msg("Scheduler started")
}

// runAt sleeps until the next fire time, runs the job, then reschedules.
// Recomputing from the wall clock after each fire keeps the loop correct
// across DST transitions.
func (s *Scheduler) runAt(ctx context.Context, name string, next func(time.Time) time.Time, fire func(context.Context)) {
	for {
		at := next(s.nowFunc())
		timer := time.NewTimer(at.Sub(s.nowFunc()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			log.Debug().Str("job", name).Time("fired_at", s.nowFunc()).Msg("Scheduled job firing")
			fire(ctx)
		}
	}
}

func (s *Scheduler) runEvery(ctx context.Context, interval time.Duration, fire func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fire(ctx)
		}
	}
}

// Trigger runs one scheduled fan-out immediately. Used by the admin API to
// exercise a job without waiting for its fire time.
func (s *Scheduler) Trigger(ctx context.Context, kind string) error {
	switch kind {
	case push.TypeMidnightMemory:
		s.fireMidnightMemory(ctx)
	case push.TypeDailyReminder:
		s.fireDailyReminder(ctx)
	case push.TypeHourlyReminder:
		s.firePeriodicReminder(ctx)
	default:
		return fmt.Errorf("unknown fan-out kind %q", kind)
	}
	return nil
}

// fireMidnightMemory announces the new day's memory, but only when at least
// one conversation actually has a memory image for the day. No memory means
// no push.
func (s *Scheduler) fireMidnightMemory(ctx context.Context) {
	todayID := daybucket.Today(s.loc)
	ok, err := s.dailyRepo.ExistsWithMemory(ctx, todayID)
	if err != nil {
		log.Error().Err(err).Str("date_id", todayID).Msg("Failed to check for today's memory")
		return
	}
	if !ok {
		log.Debug().Str("date_id", todayID).Msg("No memory for today, skipping midnight push")
		return
	}
	s.notify.FanOutToAll(ctx, push.Notification{
		Title: "New memory 🌙",
		Body:  "A new memory is waiting for you",
		Data: map[string]string{
			"type":    push.TypeMidnightMemory,
			"date_id": todayID,
		},
	})
}

func (s *Scheduler) fireDailyReminder(ctx context.Context) {
	s.notify.FanOutToAll(ctx, push.Notification{
		Title: "Photo time! 📷",
		Body:  "Don't forget to share today's photo",
		Data:  map[string]string{"type": push.TypeDailyReminder},
	})
}

func (s *Scheduler) firePeriodicReminder(ctx context.Context) {
	s.notify.FanOutToAll(ctx, push.Notification{
		Title: "✨ Moment check",
		Body:  "Capture what you're up to right now",
		Data:  map[string]string{"type": push.TypeHourlyReminder},
	})
}
