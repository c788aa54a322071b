// Package scheduler sends due-review reminders on a schedule.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Default notification settings
const (
	DefaultNotificationStartHour = 8
	DefaultNotificationEndHour   = 22
	DefaultInterval              = time.Hour
)

// Notifier sends a reminder to a student
type Notifier interface {
	SendReminders(studentID string, count int) error
}

// DueSource counts due reviews per student
type DueSource interface {
	DueCounts(ctx context.Context, now time.Time) (map[string]int, error)
}

// Config controls when reminders go out
type Config struct {
	Interval  time.Duration
	StartHour int // First hour reminders may be sent, inclusive
	EndHour   int // Last hour reminders may be sent, inclusive
	Location  *time.Location
}

// DefaultConfig returns hourly checks between 8:00 and 22:59 UTC
func DefaultConfig() Config {
	return Config{
		Interval:  DefaultInterval,
		StartHour: DefaultNotificationStartHour,
		EndHour:   DefaultNotificationEndHour,
		Location:  time.UTC,
	}
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	cron     *gocron.Scheduler
	due      DueSource
	notifier Notifier
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a new scheduler instance
func New(due DueSource, notifier Notifier, cfg Config, opts ...Option) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	s := &Scheduler{
		cron:     gocron.NewScheduler(cfg.Location),
		due:      due,
		notifier: notifier,
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron.SingletonModeAll()
	return s
}

// Start schedules the reminder check and runs it in the background
func (s *Scheduler) Start() error {
	_, err := s.cron.Every(s.cfg.Interval).Do(func() {
		if _, err := s.CheckAndSendReminders(context.Background()); err != nil {
			s.logger.Error("reminder check failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reminders: %w", err)
	}
	s.cron.StartAsync()
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// InNotificationHours reports whether hour falls in the window; a window with
// StartHour > EndHour wraps past midnight
func (c Config) InNotificationHours(hour int) bool {
	if c.StartHour <= c.EndHour {
		return hour >= c.StartHour && hour <= c.EndHour
	}
	return hour >= c.StartHour || hour <= c.EndHour
}

// CheckAndSendReminders notifies every student with due reviews and returns how many were notified
func (s *Scheduler) CheckAndSendReminders(ctx context.Context) (int, error) {
	now := s.now().In(s.cfg.Location)
	if !s.cfg.InNotificationHours(now.Hour()) {
		s.logger.Debug("outside notification hours, skipping reminders",
			zap.Int("hour", now.Hour()),
			zap.Int("start", s.cfg.StartHour),
			zap.Int("end", s.cfg.EndHour))
		return 0, nil
	}

	counts, err := s.due.DueCounts(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to get due words: %w", err)
	}

	students := make([]string, 0, len(counts))
	for id := range counts {
		students = append(students, id)
	}
	sort.Strings(students)

	sent := 0
	for _, id := range students {
		if counts[id] == 0 {
			continue
		}
		if err := s.notifier.SendReminders(id, counts[id]); err != nil {
			s.logger.Warn("failed to send reminder", zap.String("student_id", id), zap.Error(err))
			continue
		}
		sent++
	}
	s.logger.Info("reminders sent", zap.Int("students", sent))
	return sent, nil
}

// RunManualCheck forces a check for a specific student, ignoring notification hours
func (s *Scheduler) RunManualCheck(ctx context.Context, studentID string) (int, error) {
	counts, err := s.due.DueCounts(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to get due words: %w", err)
	}
	n := counts[studentID]
	if n == 0 {
		return 0, nil
	}
	if err := s.notifier.SendReminders(studentID, n); err != nil {
		return n, fmt.Errorf("failed to send reminder: %w", err)
	}
	return n, nil
}
