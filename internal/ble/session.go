package ble

import (
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
)

// Session collects at most one Reading per configured sensor during a single
// discovery window.
type Session struct {
	sensors map[string]string
	logger  *slog.Logger

	mu       sync.Mutex
	seen     map[string]struct{}
	readings []Reading
	closed   bool
}

// NewSession opens a discovery window for the given address -> location mapping.
// Addresses in sensors must already be lowercase.
func NewSession(sensors map[string]string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		sensors: sensors,
		logger:  logger,
		seen:    make(map[string]struct{}, len(sensors)),
	}
}

// OnAdvertisement records the first decodable frame of a configured sensor.
// Unknown addresses, repeated sensors and undecodable payloads are dropped.
func (s *Session) OnAdvertisement(adv Advertisement) {
	addr := strings.ToLower(adv.Address)
	location, ok := s.sensors[addr]
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, dup := s.seen[addr]; dup {
		return
	}

	for _, md := range adv.ManufacturerData {
		if len(md.Data) != FrameLen {
			continue
		}
		r, err := Decode(md.Data, md.CompanyID)
		if err != nil {
			s.logger.Debug("ble: ignore undecodable frame",
				"addr", addr,
				"company", md.CompanyID,
				"data", hex.EncodeToString(md.Data),
				"error", err,
			)
			return
		}
		r.Address = addr
		r.Location = location
		s.seen[addr] = struct{}{}
		s.readings = append(s.readings, r)

		if h, err := ParseFrameHeader(md.Data); err == nil {
			s.logger.Debug("ble: sensor reading",
				"addr", addr,
				"location", location,
				"rssi", adv.RSSI,
				"T", r.Temperature, "H", r.Humidity, "battery", r.Battery,
				"button", h.ButtonPressed,
				"uptime_s", h.Uptime,
			)
		}
		return
	}
}

// Close ends the window and returns the readings in delivery order.
// Later advertisements are ignored.
func (s *Session) Close() []Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	out := make([]Reading, len(s.readings))
	copy(out, s.readings)
	return out
}
