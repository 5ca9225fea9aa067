// Package notification delivers trading alerts (fills, gate changes, feed
// outages) to external channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel     `json:"level"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the process log.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi sends to every backend and joins their errors.
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

// TradeAlert formats a simulated fill.
func TradeAlert(action string, price, sum, value float64, ts int64) Alert {
	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("%s executed", action),
		Message: fmt.Sprintf("%s at %.2f, balance %.6f, value %.2f", action, price, sum, value),
		Fields: map[string]any{
			"action": action,
			"price":  price,
			"sum":    sum,
			"value":  value,
			"time":   ts,
		},
	}
}
