package ble

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSensors = map[string]string{
	"6f:15:00:00:00:42": "livingroom",
	"6f:15:00:00:0c:b1": "bedroom",
}

func adv(addr string, entries ...ManufacturerData) Advertisement {
	return Advertisement{Address: addr, ManufacturerData: entries}
}

func frameEntry(temp uint16) ManufacturerData {
	return ManufacturerData{CompanyID: TypeCodeThermoBeacon, Data: buildFrame(3400, temp, 0x0320)}
}

func TestSession_AcceptsConfiguredSensor(t *testing.T) {
	s := NewSession(testSensors, nil)
	s.OnAdvertisement(adv("6F:15:00:00:00:42", frameEntry(0x0158)))

	got := s.Close()
	require.Len(t, got, 1)
	assert.Equal(t, "6f:15:00:00:00:42", got[0].Address)
	assert.Equal(t, "livingroom", got[0].Location)
	assert.Equal(t, 21.5, got[0].Temperature)
}

func TestSession_IgnoresUnknownAddress(t *testing.T) {
	s := NewSession(testSensors, nil)
	s.OnAdvertisement(adv("aa:bb:cc:dd:ee:ff", frameEntry(0x0158)))
	assert.Empty(t, s.Close())
}

func TestSession_FirstSeenWins(t *testing.T) {
	s := NewSession(testSensors, nil)
	s.OnAdvertisement(adv("6f:15:00:00:00:42", frameEntry(0x0158)))
	s.OnAdvertisement(adv("6f:15:00:00:00:42", frameEntry(0x0200)))

	got := s.Close()
	require.Len(t, got, 1)
	assert.Equal(t, 21.5, got[0].Temperature)
}

func TestSession_PicksFirstEighteenByteEntry(t *testing.T) {
	s := NewSession(testSensors, nil)
	s.OnAdvertisement(adv("6f:15:00:00:0c:b1",
		ManufacturerData{CompanyID: TypeCodeThermoBeacon, Data: make([]byte, 22)},
		frameEntry(0x0160),
		frameEntry(0x0200),
	))

	got := s.Close()
	require.Len(t, got, 1)
	assert.Equal(t, 22.0, got[0].Temperature)
	assert.Equal(t, "bedroom", got[0].Location)
}

func TestSession_NoQualifyingEntry(t *testing.T) {
	s := NewSession(testSensors, nil)
	s.OnAdvertisement(adv("6f:15:00:00:0c:b1",
		ManufacturerData{CompanyID: TypeCodeThermoBeacon, Data: make([]byte, 17)},
	))
	assert.Empty(t, s.Close())
}

func TestSession_DecodeFailureSwallowed(t *testing.T) {
	s := NewSession(testSensors, nil)
	s.OnAdvertisement(adv("6f:15:00:00:0c:b1",
		ManufacturerData{CompanyID: 0x004C, Data: buildFrame(1, 2, 3)},
	))
	s.OnAdvertisement(adv("6f:15:00:00:00:42", frameEntry(0x0158)))

	got := s.Close()
	require.Len(t, got, 1)
	assert.Equal(t, "livingroom", got[0].Location)
}

func TestSession_RetriesAfterDecodeFailure(t *testing.T) {
	s := NewSession(testSensors, nil)
	s.OnAdvertisement(adv("6f:15:00:00:0c:b1",
		ManufacturerData{CompanyID: 0x004C, Data: buildFrame(1, 2, 3)},
	))
	s.OnAdvertisement(adv("6f:15:00:00:0c:b1", frameEntry(0x0160)))

	got := s.Close()
	require.Len(t, got, 1)
	assert.Equal(t, "bedroom", got[0].Location)
	assert.Equal(t, 22.0, got[0].Temperature)
}

func TestSession_DeliveryOrderKept(t *testing.T) {
	s := NewSession(testSensors, nil)
	s.OnAdvertisement(adv("6f:15:00:00:0c:b1", frameEntry(0x0160)))
	s.OnAdvertisement(adv("6f:15:00:00:00:42", frameEntry(0x0158)))

	got := s.Close()
	require.Len(t, got, 2)
	assert.Equal(t, "bedroom", got[0].Location)
	assert.Equal(t, "livingroom", got[1].Location)
}

func TestSession_IgnoresAfterClose(t *testing.T) {
	s := NewSession(testSensors, nil)
	first := s.Close()
	s.OnAdvertisement(adv("6f:15:00:00:00:42", frameEntry(0x0158)))

	assert.Empty(t, first)
	assert.Empty(t, s.Close())
}

func TestSession_ConcurrentProducer(t *testing.T) {
	s := NewSession(testSensors, nil)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			s.OnAdvertisement(adv("6f:15:00:00:00:42", frameEntry(uint16(i))))
			s.OnAdvertisement(adv("6f:15:00:00:0c:b1", frameEntry(uint16(i))))
		}
	}()
	wg.Wait()

	got := s.Close()
	require.Len(t, got, 2)
	assert.Equal(t, 0.0, got[0].Temperature)
	assert.Equal(t, 0.0, got[1].Temperature)
}
