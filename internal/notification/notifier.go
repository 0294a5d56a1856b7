// Package notification delivers signal transition alerts to external
// channels (Telegram, webhooks).
package notification

import (
	"context"
	"fmt"
	"log"

	"tradepulse/internal/model"
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
	Level         AlertLevel `json:"level"`
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	InstrumentKey string     `json:"instrument_key,omitempty"`
	Signal        string     `json:"signal,omitempty"`
	Conviction    int        `json:"conviction,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts instead of delivering them (useful in development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans one alert out to several backends. Failures are logged and do
// not block the remaining backends.
type Multi struct {
	backends []Notifier
}

// NewMulti creates a fan-out notifier. Nil backends are skipped.
func NewMulti(backends ...Notifier) *Multi {
	m := &Multi{}
	for _, b := range backends {
		if b != nil {
			m.backends = append(m.backends, b)
		}
	}
	return m
}

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	var firstErr error
	for _, b := range m.backends {
		if err := b.Send(ctx, alert); err != nil {
			log.Printf("[notify] backend failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// TransitionAlert builds an alert from a primary signal flip. Flips whose
// conviction magnitude is below minConviction are not worth paging on and
// return ok=false. Strong conviction escalates the severity.
func TransitionAlert(r *model.AnalysisResult, previous string, minConviction int) (Alert, bool) {
	mag := r.ConvictionScore
	if mag < 0 {
		mag = -mag
	}
	if mag < minConviction {
		return Alert{}, false
	}
	level := AlertInfo
	if r.ConvictionScore >= 7 || r.ConvictionScore <= -7 {
		level = AlertWarning
	}
	return Alert{
		Level: level,
		Title: fmt.Sprintf("%s: %s", r.Symbol, r.PrimarySignal),
		Message: fmt.Sprintf("was %s, conviction %+d, %s | %s",
			previous, r.ConvictionScore, r.MarketThesis, r.FinalTradeSignal),
		InstrumentKey: r.InstrumentKey,
		Signal:        r.PrimarySignal,
		Conviction:    r.ConvictionScore,
	}, true
}
