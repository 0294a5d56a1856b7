package notification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tradepulse/internal/model"
)

type recordingNotifier struct {
	alerts []Alert
	err    error
}

func (r *recordingNotifier) Send(_ context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestMultiFanOut(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{err: errors.New("telegram down")}
	c := &recordingNotifier{}
	m := NewMulti(a, nil, b, c)

	err := m.Send(context.Background(), Alert{Title: "test"})
	if err == nil || err.Error() != "telegram down" {
		t.Errorf("Send error = %v, want first backend failure", err)
	}
	// A failing backend must not block the ones after it.
	for i, n := range []*recordingNotifier{a, b, c} {
		if len(n.alerts) != 1 {
			t.Errorf("backend %d received %d alerts, want 1", i, len(n.alerts))
		}
	}
}

func TestTransitionAlert(t *testing.T) {
	r := model.NewAnalysisResult("NSE:26000", "NIFTY 50")
	r.PrimarySignal = "Bullish"
	r.ConvictionScore = 5
	r.MarketThesis = model.ThesisBullishTrend
	r.FinalTradeSignal = "Moderate Bullish"

	a, ok := TransitionAlert(r, "Neutral", 3)
	if !ok {
		t.Fatal("conviction 5 suppressed at floor 3")
	}
	if a.Level != AlertInfo {
		t.Errorf("Level = %q, want INFO at moderate conviction", a.Level)
	}
	if a.Title != "NIFTY 50: Bullish" {
		t.Errorf("Title = %q", a.Title)
	}
	if a.InstrumentKey != "NSE:26000" || a.Signal != "Bullish" || a.Conviction != 5 {
		t.Errorf("alert identity = %+v", a)
	}
	if a.Message != "was Neutral, conviction +5, Bullish_Trend | Moderate Bullish" {
		t.Errorf("Message = %q", a.Message)
	}

	r.ConvictionScore = -8
	if a, ok := TransitionAlert(r, "Neutral", 3); !ok || a.Level != AlertWarning {
		t.Errorf("Level = %q (ok=%v), want WARNING at strong conviction", a.Level, ok)
	}
}

func TestTelegramText(t *testing.T) {
	a := Alert{
		Level:         AlertWarning,
		Title:         "NIFTY 50: Bullish",
		Message:       "was Neutral, conviction +8",
		InstrumentKey: "NSE:26000",
		Signal:        "Bullish",
		Conviction:    8,
	}
	text := telegramText(a)
	if !strings.HasPrefix(text, "⚠️ *NIFTY 50: Bullish*") {
		t.Errorf("text = %q, want warning emoji and bold title prefix", text)
	}
	if !strings.Contains(text, `NSE:26000 \| Bullish \| conviction \+8`) {
		t.Errorf("text = %q, missing escaped instrument line", text)
	}

	// Non-transition alerts carry no trailing instrument line.
	plain := telegramText(Alert{Level: AlertInfo, Title: "startup", Message: "ok"})
	if strings.Contains(plain, "conviction") {
		t.Errorf("plain alert text = %q, unexpected instrument line", plain)
	}
}

func TestTransitionAlertConvictionFloor(t *testing.T) {
	r := model.NewAnalysisResult("NSE:26000", "NIFTY 50")
	r.PrimarySignal = "Bullish"
	r.ConvictionScore = 2

	if _, ok := TransitionAlert(r, "Neutral", 3); ok {
		t.Error("conviction +2 passed floor 3")
	}
	r.ConvictionScore = -2
	if _, ok := TransitionAlert(r, "Bullish", 3); ok {
		t.Error("conviction -2 passed floor 3")
	}
	r.ConvictionScore = -3
	if _, ok := TransitionAlert(r, "Bullish", 3); !ok {
		t.Error("conviction -3 suppressed at floor 3")
	}
}
