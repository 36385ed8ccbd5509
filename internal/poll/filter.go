package poll

import "github.com/nkalkhof/ThermoBeacon/internal/ble"

// Baseline is the last published reading per sensor address.
type Baseline map[string]ble.Reading

// A baseline smaller than this is treated as uninitialized.
const coldStartEntries = 2

// ShouldPublish reports whether the current window differs from the baseline.
// Only temperature is compared. A sensor missing from the baseline counts as a
// change, and any change republishes the whole window.
func ShouldPublish(current []ble.Reading, baseline Baseline) bool {
	if len(baseline) < coldStartEntries {
		return true
	}
	for _, r := range current {
		prev, ok := baseline[r.Address]
		if !ok || prev.Temperature != r.Temperature {
			return true
		}
	}
	return false
}

// Advance builds the baseline that replaces the previous one after a publish.
// Sensors listed in failed are left out so the next cycle sees them as changed.
func Advance(current []ble.Reading, failed map[string]bool) Baseline {
	next := make(Baseline, len(current))
	for _, r := range current {
		if failed[r.Address] {
			continue
		}
		next[r.Address] = r
	}
	return next
}
