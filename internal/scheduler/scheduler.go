package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/example/vocabreview/internal/monitoring"
	"github.com/example/vocabreview/internal/spaced_repetition"
	"github.com/example/vocabreview/pkg/models"
)

// Default notification settings
const (
	DefaultNotificationStartHour = 8
	DefaultNotificationEndHour   = 22
	DefaultReminderUrgency       = 60
)

// Notifier interface for sending notifications
type Notifier interface {
	SendReminders(userID int64, count int) error
}

// UserSource lists users that want reminders.
type UserSource interface {
	ListNotifiable(ctx context.Context) ([]models.UserSettings, error)
}

// ItemSource loads the items of a level.
type ItemSource interface {
	LoadItems(ctx context.Context, level int) ([]models.Item, error)
}

// MasterySource loads the stored records of a user.
type MasterySource interface {
	LoadMastery(ctx context.Context, userID int64) (map[models.MasteryKey]models.MasteryRecord, error)
}

// Config holds the reminder window and threshold
type Config struct {
	StartHour  int     // First hour (inclusive) reminders may be sent
	EndHour    int     // Last hour (inclusive) reminders may be sent
	MinUrgency float64 // Reviewed items at or above this urgency count as due
	Location   *time.Location
}

// DefaultConfig returns the default reminder configuration
func DefaultConfig() Config {
	return Config{
		StartHour:  DefaultNotificationStartHour,
		EndHour:    DefaultNotificationEndHour,
		MinUrgency: DefaultReminderUrgency,
		Location:   time.UTC,
	}
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	notifier  Notifier
	users     UserSource
	items     ItemSource
	mastery   MasterySource
	config    Config
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a new scheduler instance
func New(config Config, notifier Notifier, users UserSource, items ItemSource, mastery MasterySource, logger *zap.Logger) *Scheduler {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(config.Location),
		notifier:  notifier,
		users:     users,
		items:     items,
		mastery:   mastery,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Start begins running all scheduled tasks
func (s *Scheduler) Start() error {
	// Hourly check for users who need notifications
	if _, err := s.scheduler.Every(1).Hour().Do(s.checkAndSendReminders); err != nil {
		return errors.Wrap(err, "failed to schedule reminders")
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) checkAndSendReminders() {
	sent, err := s.RunCheck(context.Background())
	if err != nil {
		s.logger.Error("reminder check failed", zap.Error(err))
		return
	}
	s.logger.Info("reminder check finished", zap.Int("sent", sent))
}

// InWindow reports whether hour lies inside the notification window.
// A window whose end is before its start wraps past midnight.
func (c Config) InWindow(hour int) bool {
	if c.StartHour <= c.EndHour {
		return hour >= c.StartHour && hour <= c.EndHour
	}
	return hour >= c.StartHour || hour <= c.EndHour
}

// RunCheck sends a reminder to every notifiable user with due reviews and returns how many were sent.
// Outside the notification window it does nothing.
func (s *Scheduler) RunCheck(ctx context.Context) (int, error) {
	now := s.now().In(s.config.Location)
	if !s.config.InWindow(now.Hour()) {
		s.logger.Debug("outside notification hours, skipping reminders",
			zap.Int("hour", now.Hour()),
			zap.Int("start", s.config.StartHour),
			zap.Int("end", s.config.EndHour))
		return 0, nil
	}

	users, err := s.users.ListNotifiable(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get users for notification")
	}

	sent := 0
	for _, user := range users {
		count, err := s.dueCount(ctx, user, now)
		if err != nil {
			s.logger.Warn("failed to count due items", zap.Int64("user_id", user.UserID), zap.Error(err))
			continue
		}
		if count == 0 {
			continue
		}
		if err := s.notifier.SendReminders(user.UserID, count); err != nil {
			s.logger.Warn("failed to send reminder", zap.Int64("user_id", user.UserID), zap.Error(err))
			continue
		}
		monitoring.RemindersSent.Inc()
		sent++
	}
	return sent, nil
}

// RunManualCheck forces a check for a specific user regardless of the time window.
// It returns the number of due items; nothing is sent when there are none.
func (s *Scheduler) RunManualCheck(ctx context.Context, settings models.UserSettings) (int, error) {
	count, err := s.dueCount(ctx, settings, s.now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		if err := s.notifier.SendReminders(settings.UserID, count); err != nil {
			return count, err
		}
	}
	return count, nil
}

// dueCount counts reviewed items of the user's level and mode that reached the urgency threshold.
// Never-reviewed items are not reminders.
func (s *Scheduler) dueCount(ctx context.Context, user models.UserSettings, now time.Time) (int, error) {
	items, err := s.items.LoadItems(ctx, user.Level)
	if err != nil {
		return 0, errors.Wrap(err, "failed to load items")
	}
	records, err := s.mastery.LoadMastery(ctx, user.UserID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to load mastery")
	}

	lookup := recordMap(records)
	reviewed := make([]models.Item, 0, len(items))
	for _, item := range items {
		if rec, ok := lookup.Get(item.Level, item.ID, user.Mode); ok && rec.Reviewed() {
			reviewed = append(reviewed, item)
		}
	}
	return spaced_repetition.CountDue(reviewed, lookup, user.Mode, now, s.config.MinUrgency), nil
}

type recordMap map[models.MasteryKey]models.MasteryRecord

func (m recordMap) Get(level int, itemID string, mode models.ReviewMode) (models.MasteryRecord, bool) {
	rec, ok := m[models.MasteryKey{Level: level, ItemID: itemID, Mode: mode}]
	return rec, ok
}
