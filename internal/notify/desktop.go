package notify

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
)

// DesktopNotifier sends desktop notifications
type DesktopNotifier struct {
	enabled bool
}

// NewDesktopNotifier creates a new desktop notifier
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled}
}

// Send sends a desktop notification
func (d *DesktopNotifier) Send(ctx context.Context, n Notification) error {
	if !d.enabled {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		return d.sendMacOS(ctx, n)
	case "linux":
		return d.sendLinux(ctx, n)
	default:
		return nil // Unsupported
	}
}

func (d *DesktopNotifier) sendMacOS(ctx context.Context, n Notification) error {
	script := `display notification "` + escapeAppleScript(n.Message) +
		`" with title "` + escapeAppleScript(n.Title) + `"`
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	return cmd.Run()
}

func (d *DesktopNotifier) sendLinux(ctx context.Context, n Notification) error {
	// Try notify-send (most common)
	cmd := exec.CommandContext(ctx, "notify-send", "-i", IconForType(n.Type), n.Title, n.Message)
	return cmd.Run()
}

// escapeAppleScript escapes a string for embedding in a double-quoted
// AppleScript literal. World names show up quoted in failure messages.
func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// IconForType returns an icon name for the notification type
func IconForType(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "dialog-positive"
	case NotifyWarning:
		return "dialog-warning"
	case NotifyError:
		return "dialog-error"
	default:
		return "dialog-information"
	}
}
