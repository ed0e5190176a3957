// Package notification schedules the daily journaling reminder push through
// Firebase Cloud Messaging.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"gratia/internal/domain/service"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type firebaseService struct {
	client *messaging.Client
}

// NewFirebaseService creates a Firebase-backed reminder scheduler.
func NewFirebaseService(ctx context.Context, credentialsPath string) (service.ReminderScheduler, error) {
	opt := option.WithCredentialsFile(credentialsPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	return &firebaseService{client: client}, nil
}

// reminderTopic is the per-user topic the user's devices subscribe to.
func reminderTopic(userID string) string {
	return "reminders-" + userID
}

// ScheduleDailyReminder publishes a silent data message instructing the
// user's devices to (re)schedule their local daily reminder.
func (s *firebaseService) ScheduleDailyReminder(ctx context.Context, userID, timeOfDay string) error {
	message := &messaging.Message{
		Topic: reminderTopic(userID),
		Data: map[string]string{
			"action":        "schedule_daily_reminder",
			"reminder_time": timeOfDay,
		},
	}

	if _, err := s.client.Send(ctx, message); err != nil {
		return fmt.Errorf("failed to send reminder schedule message: %w", err)
	}

	return nil
}

// CancelDailyReminder publishes a data message instructing the user's devices
// to drop their local daily reminder.
func (s *firebaseService) CancelDailyReminder(ctx context.Context, userID string) error {
	message := &messaging.Message{
		Topic: reminderTopic(userID),
		Data: map[string]string{
			"action": "cancel_daily_reminder",
		},
	}

	if _, err := s.client.Send(ctx, message); err != nil {
		return fmt.Errorf("failed to send reminder cancel message: %w", err)
	}

	return nil
}

// noopScheduler is used when Firebase is not configured.
type noopScheduler struct {
	logger *slog.Logger
}

// NewNoopScheduler returns a scheduler that logs and drops every request.
func NewNoopScheduler(logger *slog.Logger) service.ReminderScheduler {
	return &noopScheduler{logger: logger}
}

func (s *noopScheduler) ScheduleDailyReminder(_ context.Context, userID, timeOfDay string) error {
	s.logger.Debug("[NoopScheduler] Reminder scheduling disabled, skipping",
		slog.String("userID", userID),
		slog.String("timeOfDay", timeOfDay),
	)

	return nil
}

func (s *noopScheduler) CancelDailyReminder(_ context.Context, userID string) error {
	s.logger.Debug("[NoopScheduler] Reminder cancel disabled, skipping",
		slog.String("userID", userID),
	)

	return nil
}
