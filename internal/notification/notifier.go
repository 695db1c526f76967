// Package notification delivers blotter alerts, such as loss and recovery of
// the Redis feed, to a log or an HTTP webhook.
package notification

import (
	"context"
	"errors"
	"log/slog"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is one blotter notification. Feed names the upstream it concerns,
// such as "Redis".
type Alert struct {
	Level   AlertLevel `json:"level"`
	Feed    string     `json:"feed,omitempty"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

func (l AlertLevel) slogLevel() slog.Level {
	switch l {
	case AlertInfo:
		return slog.LevelInfo
	case AlertCritical:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts as structured records. CRITICAL maps to the
// error level, INFO to info and anything else to warn.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier logs through the default slog logger.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// NewLogNotifierTo logs through l.
func NewLogNotifierTo(l *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: l}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	l := n.logger
	if l == nil {
		l = slog.Default()
	}
	attrs := []slog.Attr{slog.String("alert", string(alert.Level))}
	if alert.Feed != "" {
		attrs = append(attrs, slog.String("feed", alert.Feed))
	}
	if alert.Message != "" {
		attrs = append(attrs, slog.String("detail", alert.Message))
	}
	l.LogAttrs(ctx, alert.Level.slogLevel(), "[notify] "+alert.Title, attrs...)
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
