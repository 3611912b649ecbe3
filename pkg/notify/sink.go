// Package notify delivers breach notifications. Delivery is fire-and-forget:
// the state-updater hands a message over and moves on, failures are logged
// and counted, never retried or surfaced.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Message is one composed breach notification
type Message struct {
	AlertID    string  `json:"alert_id"`
	AlertName  string  `json:"alert_name"`
	ScopeName  string  `json:"scope_name"`
	Severity   string  `json:"severity"`
	MetricName string  `json:"metric_name,omitempty"`
	Value      float64 `json:"value,omitempty"`
	Text       string  `json:"message"`
}

// Sink delivers a notification message
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// LogSink writes notifications to the log, the default when no transport is
// configured
type LogSink struct{}

// NewLogSink creates a log-only sink
func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Send(_ context.Context, msg Message) error {
	logrus.Infof("NOTIFICATION [%s] %s", msg.Severity, msg.Text)
	return nil
}
