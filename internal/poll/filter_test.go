package poll

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nkalkhof/ThermoBeacon/internal/ble"
)

const (
	addrA = "6f:15:00:00:00:42"
	addrB = "6f:15:00:00:0c:b1"
	addrC = "6f:15:00:00:0d:01"
)

func reading(addr, loc string, temp, hum float64) ble.Reading {
	return ble.Reading{Address: addr, Location: loc, Temperature: temp, Humidity: hum, Battery: 3400}
}

func TestShouldPublish_ColdStart(t *testing.T) {
	current := []ble.Reading{reading(addrA, "a", 20, 40)}

	assert.True(t, ShouldPublish(current, nil))
	assert.True(t, ShouldPublish(current, Baseline{}))
	assert.True(t, ShouldPublish(current, Baseline{addrA: reading(addrA, "a", 20, 40)}))
}

func TestShouldPublish(t *testing.T) {
	baseline := Baseline{
		addrA: reading(addrA, "a", 20, 40),
		addrB: reading(addrB, "b", 21, 45),
	}

	tests := []struct {
		name    string
		current []ble.Reading
		want    bool
	}{
		{
			name:    "unchanged",
			current: []ble.Reading{reading(addrA, "a", 20, 40), reading(addrB, "b", 21, 45)},
			want:    false,
		},
		{
			name:    "subset unchanged",
			current: []ble.Reading{reading(addrA, "a", 20, 40)},
			want:    false,
		},
		{
			name:    "temperature changed",
			current: []ble.Reading{reading(addrA, "a", 20, 40), reading(addrB, "b", 21.0625, 45)},
			want:    true,
		},
		{
			name:    "humidity change ignored",
			current: []ble.Reading{reading(addrA, "a", 20, 55), reading(addrB, "b", 21, 10)},
			want:    false,
		},
		{
			name:    "battery change ignored",
			current: []ble.Reading{{Address: addrA, Location: "a", Temperature: 20, Humidity: 40, Battery: 1}},
			want:    false,
		},
		{
			name:    "sensor missing from baseline",
			current: []ble.Reading{reading(addrA, "a", 20, 40), reading(addrC, "c", 19, 50)},
			want:    true,
		},
		{
			name:    "empty window",
			current: nil,
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldPublish(tt.current, baseline))
		})
	}
}

func TestShouldPublish_SingleEntryBaselineWithNewSensor(t *testing.T) {
	baseline := Baseline{addrA: reading(addrA, "a", 20, 40)}
	current := []ble.Reading{reading(addrA, "a", 20, 40), reading(addrB, "b", 21, 45)}
	assert.True(t, ShouldPublish(current, baseline))
}

func TestAdvance_ReplacesWholesale(t *testing.T) {
	current := []ble.Reading{reading(addrA, "a", 22, 40), reading(addrB, "b", 23, 45)}

	got := Advance(current, nil)

	assert.Equal(t, Baseline{addrA: current[0], addrB: current[1]}, got)
}

func TestAdvance_DropsStaleAndFailed(t *testing.T) {
	current := []ble.Reading{reading(addrA, "a", 22, 40), reading(addrB, "b", 23, 45)}

	got := Advance(current, map[string]bool{addrA: true})

	assert.Equal(t, Baseline{addrB: current[1]}, got)
	_, hasC := got[addrC]
	assert.False(t, hasC)
}
