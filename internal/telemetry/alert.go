//go:build windows

// Package telemetry's ToastNotifier shows a Windows desktop toast for
// SAFETY-severity invariant breaches, following the same guard as the
// teacher's internal/notifications/toast.go ToastNotifier.ShowToast
// (Windows-only; other platforms get the no-op build in alert_other.go).
package telemetry

import "github.com/go-toast/toast"

// ToastNotifier shows a Windows toast notification.
type ToastNotifier struct {
	AppID string
}

// Notify shows a toast with the given title and message.
func (t *ToastNotifier) Notify(title, message string) error {
	n := toast.Notification{
		AppID:   t.AppID,
		Title:   title,
		Message: message,
	}
	return n.Push()
}
