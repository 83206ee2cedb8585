package host

import (
	"go.uber.org/zap"

	"github.com/midiview/midiview/internal/logging"
)

// Notifier surfaces user-facing notifications: export outcomes and
// sandbox errors. The editor shell supplies the real implementation.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

// LogNotifier routes notifications to the structured log.
type LogNotifier struct {
	Log *logging.Logger
}

func (n LogNotifier) Info(msg string) {
	n.Log.Info("notify", zap.String("message", msg))
}

func (n LogNotifier) Error(msg string) {
	n.Log.Error("notify", zap.String("message", msg))
}
