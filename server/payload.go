package neurales

import (
	"fmt"

	Nt "github.com/maroda/neurales/types"
)

// ValidatePayload checks a payload before it goes on the wire.
func ValidatePayload(p *Nt.Payload) error {
	if p == nil {
		return fmt.Errorf("no payload")
	}
	if p.Fatigue < 0 || p.Fatigue > 100 {
		return fmt.Errorf("fatigue %d outside 0-100", p.Fatigue)
	}
	if !(p.SFreq > 0) {
		return fmt.Errorf("sfreq must be positive, got %v", p.SFreq)
	}
	if len(p.Channels) != len(p.Samples) {
		return fmt.Errorf("%d channels but %d sample rows", len(p.Channels), len(p.Samples))
	}
	if p.Alerts == nil {
		return fmt.Errorf("alerts must be an array")
	}
	if p.T0 < 0 {
		return fmt.Errorf("t0 cannot be negative")
	}
	return nil
}
