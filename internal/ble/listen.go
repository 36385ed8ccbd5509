package ble

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

const stopScanTimeout = 5 * time.Second

type Options struct {
	Adapter string // "hci0" by default
}

// Listener wraps BlueZ scanning as a start/stop discovery radio.
type Listener struct {
	adapter *bluetooth.Adapter
	opts    Options
	logger  *slog.Logger

	handlerMu sync.RWMutex
	handler   func(Advertisement)

	mu   sync.Mutex
	done chan error
}

func NewListener(opts Options, logger *slog.Logger) *Listener {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Listener{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
		logger:  logger,
	}
}

func (l *Listener) Enable() error {
	l.logger.Info("ble: enabling adapter", "adapter", l.opts.Adapter)
	if err := l.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", l.opts.Adapter, err)
	}
	l.logger.Info("ble: adapter enabled", "adapter", l.opts.Adapter)
	return nil
}

func (l *Listener) SetHandler(h func(Advertisement)) {
	l.handlerMu.Lock()
	l.handler = h
	l.handlerMu.Unlock()
}

// StartDiscovery starts scanning in the background. Scan errors surface from
// the matching StopDiscovery call.
func (l *Listener) StartDiscovery() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return errors.New("ble: discovery already running")
	}

	done := make(chan error, 1)
	l.done = done
	go func() {
		// adapter.Scan blocks until StopScan() or error.
		done <- l.adapter.Scan(l.onScanResult)
	}()
	l.logger.Debug("ble: scanning started", "adapter", l.opts.Adapter)
	return nil
}

// StopDiscovery stops a running scan. It is a no-op when nothing is running.
func (l *Listener) StopDiscovery() error {
	l.mu.Lock()
	done := l.done
	l.done = nil
	l.mu.Unlock()
	if done == nil {
		return nil
	}

	stopErr := l.adapter.StopScan()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ble scan: %w", err)
		}
	case <-time.After(stopScanTimeout):
		return fmt.Errorf("ble scan did not stop within %v (stop: %v)", stopScanTimeout, stopErr)
	}

	l.logger.Debug("ble: scanning stopped", "adapter", l.opts.Adapter)
	return nil
}

func (l *Listener) onScanResult(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
	l.handlerMu.RLock()
	h := l.handler
	l.handlerMu.RUnlock()
	if h == nil {
		return
	}

	adv := Advertisement{
		Address: r.Address.String(),
		RSSI:    r.RSSI,
		SeenAt:  time.Now(),
	}
	for _, md := range r.ManufacturerData() {
		adv.ManufacturerData = append(adv.ManufacturerData, ManufacturerData{
			CompanyID: md.CompanyID,
			Data:      append([]byte(nil), md.Data...),
		})
	}
	if len(adv.ManufacturerData) == 0 {
		return
	}
	h(adv)
}
