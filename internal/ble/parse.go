package ble

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ThermoBeacon manufacturer data layout (little-endian, 18 bytes):
//
//	[0:2]   code
//	[2:3]   reserved
//	[3:4]   0x80 while the button is pressed
//	[4:8]   address echo
//	[8:10]  battery, raw device units
//	[10:12] temperature, 1/16 degree
//	[12:14] humidity, 1/16 percent
//	[14:18] uptime in seconds since the last reset
const (
	FrameLen = 18

	TypeCodeThermoBeacon   uint16 = 0x10
	TypeCodeThermoBeaconV2 uint16 = 0x11

	fixedPointScale = 16.0
	wrapThreshold   = 4000
	wrapOffset      = 4096
	buttonPressed   = 0x80
)

var (
	ErrFrameLength     = errors.New("ble: invalid frame length")
	ErrUnsupportedType = errors.New("ble: unsupported manufacturer data type")
)

// FrameLengthError reports a frame that is not exactly FrameLen bytes.
type FrameLengthError struct {
	Len int
}

func (e *FrameLengthError) Error() string {
	return fmt.Sprintf("ble: frame length %d, want %d", e.Len, FrameLen)
}

func (e *FrameLengthError) Is(target error) bool { return target == ErrFrameLength }

// UnsupportedTypeError reports a manufacturer data type code that is not a ThermoBeacon frame.
type UnsupportedTypeError struct {
	Code uint16
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("ble: unsupported manufacturer data type 0x%04X", e.Code)
}

func (e *UnsupportedTypeError) Is(target error) bool { return target == ErrUnsupportedType }

// Reading is a decoded ThermoBeacon sample. Address and Location are filled in
// by the Session that accepted the advertisement.
type Reading struct {
	Address     string  `json:"address"`
	Location    string  `json:"location"`
	Battery     uint16  `json:"battery"`
	Temperature float64 `json:"temperature_c"`
	Humidity    float64 `json:"humidity_pct"`
}

// Decode parses the sensor values of an 18-byte ThermoBeacon frame.
func Decode(frame []byte, typeCode uint16) (Reading, error) {
	if len(frame) != FrameLen {
		return Reading{}, &FrameLengthError{Len: len(frame)}
	}
	if typeCode != TypeCodeThermoBeacon && typeCode != TypeCodeThermoBeaconV2 {
		return Reading{}, &UnsupportedTypeError{Code: typeCode}
	}
	return Reading{
		Battery:     binary.LittleEndian.Uint16(frame[8:10]),
		Temperature: decodeFixedPoint(frame[10:12]),
		Humidity:    decodeFixedPoint(frame[12:14]),
	}, nil
}

// decodeFixedPoint maps the 12-bit signed sensor range carried in a 16-bit field.
func decodeFixedPoint(b []byte) float64 {
	v := float64(binary.LittleEndian.Uint16(b)) / fixedPointScale
	if v > wrapThreshold {
		v -= wrapOffset
	}
	return v
}

// FrameHeader holds the parts of a frame that never feed a Reading.
type FrameHeader struct {
	Code          uint16
	ButtonPressed bool
	AddressEcho   [4]byte
	Uptime        uint32
}

// ParseFrameHeader extracts the code, button flag, address echo and uptime.
func ParseFrameHeader(frame []byte) (FrameHeader, error) {
	if len(frame) != FrameLen {
		return FrameHeader{}, &FrameLengthError{Len: len(frame)}
	}
	var h FrameHeader
	h.Code = binary.LittleEndian.Uint16(frame[0:2])
	h.ButtonPressed = frame[3]&buttonPressed != 0
	copy(h.AddressEcho[:], frame[4:8])
	h.Uptime = binary.LittleEndian.Uint32(frame[14:18])
	return h, nil
}
