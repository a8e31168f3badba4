package thermo

import (
	"fmt"
	"math"
	"net"
	"strings"
	"time"
)

// Transition is one daylight-saving switch point. Time is minutes relative
// to the base UTC offset. A negative Day is a fixed day of month; otherwise
// Day is a weekday and Week selects its occurrence, counted from the end of
// the month when negative.
type Transition struct {
	Time  int16 `json:"time"`
	Month int8  `json:"month"`
	Day   int8  `json:"day"`
	Week  int8  `json:"week"`
}

// TimeZone offsets are in minutes. Daylight saving is disabled when
// DaylightDelta is zero.
type TimeZone struct {
	UTCOffset     int16      `json:"utc_offset"`
	DaylightDelta int16      `json:"daylight_delta"`
	Start         Transition `json:"daylight_start"`
	End           Transition `json:"daylight_end"`
}

type Header struct {
	Version      uint8    `json:"config_version"`
	NodeCount    uint8    `json:"node_count"`
	ChannelCount uint8    `json:"channel_count"`
	TimeZone     TimeZone `json:"time_zone"`
}

// Address is a node's 48-bit radio address.
type Address uint64

func AddressFrom(low uint32, high uint16) Address {
	return Address(uint64(high)<<32 | uint64(low))
}

func (a Address) Split() (uint32, uint16) {
	return uint32(a), uint16(a >> 32)
}

// String renders the address most significant byte first.
func (a Address) String() string {
	return a.HardwareAddr().String()
}

func (a Address) HardwareAddr() net.HardwareAddr {
	hw := make(net.HardwareAddr, 6)
	for i := range hw {
		hw[i] = byte(a >> (8 * (5 - i)))
	}
	return hw
}

func ParseAddress(s string) (Address, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("thermo: parse address: %w", err)
	}
	if len(hw) != 6 {
		return 0, fmt.Errorf("thermo: parse address: %q is not 48 bits", s)
	}
	var a Address
	for _, b := range hw {
		a = a<<8 | Address(b)
	}
	return a, nil
}

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(b []byte) error {
	v, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

type NodeInfo struct {
	Address Address `json:"address"`
	Channel uint8   `json:"channel"`
	Name    string  `json:"name"`
}

// ChannelFunction aggregates the temperatures of the nodes bound to a channel.
type ChannelFunction uint8

const (
	FuncMin ChannelFunction = iota
	FuncMax
	FuncAvg
)

func (f ChannelFunction) String() string {
	switch f {
	case FuncMin:
		return "min"
	case FuncMax:
		return "max"
	case FuncAvg:
		return "avg"
	default:
		return fmt.Sprintf("func(%d)", uint8(f))
	}
}

func ParseChannelFunction(s string) (ChannelFunction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "min":
		return FuncMin, nil
	case "max":
		return FuncMax, nil
	case "avg", "average":
		return FuncAvg, nil
	default:
		return 0, fmt.Errorf("thermo: unknown channel function %q", s)
	}
}

func (f ChannelFunction) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *ChannelFunction) UnmarshalText(b []byte) error {
	v, err := ParseChannelFunction(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Apply aggregates temps with f, skipping NaN readings. The result is NaN
// when nothing is left.
func (f ChannelFunction) Apply(temps []float64) float64 {
	acc, n := math.NaN(), 0
	for _, t := range temps {
		if math.IsNaN(t) {
			continue
		}
		switch {
		case n == 0:
			acc = t
		case f == FuncMin:
			acc = math.Min(acc, t)
		case f == FuncMax:
			acc = math.Max(acc, t)
		default:
			acc += t
		}
		n++
	}
	if f == FuncAvg && n > 0 {
		acc /= float64(n)
	}
	return acc
}

type ChannelInfo struct {
	Function ChannelFunction `json:"function"`
	Name     string          `json:"name"`
}

// NodeReading is the latest sample from a node. Temperature and Voltage are
// NaN when the node never reported.
type NodeReading struct {
	LastUpdate  time.Time `json:"last_update"`
	Uptime      uint32    `json:"uptime"`
	Temperature float64   `json:"temperature"`
	Voltage     float64   `json:"voltage"`
}

// Battery is the charge percentage for the reading's voltage.
func (r NodeReading) Battery() int {
	return BatteryLevel(r.Voltage)
}

type ChannelReading struct {
	Temperature float64 `json:"temperature"`
}
