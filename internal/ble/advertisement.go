package ble

import "time"

// ManufacturerData is one manufacturer-specific entry of an advertisement.
type ManufacturerData struct {
	CompanyID uint16
	Data      []byte
}

// Advertisement is a single observation delivered by the radio.
type Advertisement struct {
	Address          string
	RSSI             int16
	ManufacturerData []ManufacturerData
	SeenAt           time.Time
}

// Radio is the BLE discovery collaborator used by the poll loop.
// The handler is invoked from the radio's own goroutine while discovery runs.
type Radio interface {
	Enable() error
	SetHandler(func(Advertisement))
	StartDiscovery() error
	StopDiscovery() error
}
