package dispatch

import "fmt"

// Alert is the visible variant of a payload.
type Alert struct {
	Title     string
	Body      string
	PlaySound bool
	Badge     int
}

// Payload is one notification payload, built once per dispatch run. It is
// either a visible alert or a silent/background data delivery, never both.
type Payload struct {
	alert *Alert
	data  map[string]any
}

// NewAlert builds a visible alert payload. playSound maps to the default
// platform sound; badge must be non-negative.
func NewAlert(title, body string, playSound bool, badge int) (Payload, error) {
	if badge < 0 {
		return Payload{}, fmt.Errorf("badge must be non-negative, got %d", badge)
	}
	return Payload{alert: &Alert{
		Title:     title,
		Body:      body,
		PlaySound: playSound,
		Badge:     badge,
	}}, nil
}

// NewBackground builds a silent payload carrying opaque custom data.
func NewBackground(data map[string]any) (Payload, error) {
	if len(data) == 0 {
		return Payload{}, fmt.Errorf("background payload requires at least one data entry")
	}
	return Payload{data: data}, nil
}

// Background reports whether this is a silent/background payload.
func (p Payload) Background() bool { return p.data != nil }

// Alert returns the visible alert content, or nil for background payloads.
func (p Payload) Alert() *Alert { return p.alert }

// Data returns the background data, or nil for alert payloads.
func (p Payload) Data() map[string]any { return p.data }

func (p Payload) String() string {
	if p.Background() {
		return fmt.Sprintf("background payload (%d data entries)", len(p.data))
	}
	if p.alert == nil {
		return "empty payload"
	}
	return fmt.Sprintf("alert payload %q badge=%d sound=%t", p.alert.Title, p.alert.Badge, p.alert.PlaySound)
}
