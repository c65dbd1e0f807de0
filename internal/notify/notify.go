package notify

import (
	"context"
	"fmt"

	"github.com/chunkerbatch/chunkerbatch/internal/domain"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	RunID   string // Optional run reference
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// ForBatch builds the completion notification for a finished batch.
func ForBatch(result domain.BatchResult) Notification {
	typ := NotifySuccess
	msg := fmt.Sprintf("%d/%d worlds converted", result.Succeeded, result.Total)
	switch {
	case result.Cancelled:
		typ = NotifyWarning
		msg += " (cancelled)"
	case result.Succeeded < result.Total:
		typ = NotifyError
	}
	return Notification{
		Title:   "Batch conversion finished",
		Message: msg,
		Type:    typ,
	}
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(ctx context.Context, n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(ctx context.Context, n Notification) error { return nil }
