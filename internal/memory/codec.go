package memory

import (
	"encoding/binary"
	"math"
	"strings"
	"unicode/utf8"
)

// Codec is the fixed-width encode/decode pair behind every leaf field.
type Codec[T any] interface {
	Width() int
	Align() int
	Decode(b []byte) T
	Encode(v T, b []byte)
}

// Integer is the set of fixed-width integers a field can hold.
type Integer interface {
	~uint8 | ~int8 | ~uint16 | ~int16 | ~uint32 | ~int32
}

// IntCodec stores T little-endian, aligned to its own width.
type IntCodec[T Integer] struct{}

func (IntCodec[T]) Width() int {
	var zero T
	return binary.Size(zero)
}

func (c IntCodec[T]) Align() int { return c.Width() }

func (c IntCodec[T]) Decode(b []byte) T {
	switch c.Width() {
	case 1:
		return T(b[0])
	case 2:
		return T(binary.LittleEndian.Uint16(b))
	default:
		return T(binary.LittleEndian.Uint32(b))
	}
}

func (c IntCodec[T]) Encode(v T, b []byte) {
	switch c.Width() {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	default:
		binary.LittleEndian.PutUint32(b, uint32(v))
	}
}

const (
	// DecimalNoValue is the raw sentinel for "no reading".
	DecimalNoValue int16 = 0x7FFF
	DecimalMax     int16 = 0x7FFE
	DecimalMin     int16 = -0x7FFE
)

// DecimalCodec stores hundredths in a signed 16-bit integer.
type DecimalCodec struct{}

func (DecimalCodec) Width() int { return 2 }
func (DecimalCodec) Align() int { return 2 }

func (DecimalCodec) Decode(b []byte) float64 {
	raw := int16(binary.LittleEndian.Uint16(b))
	if raw == DecimalNoValue {
		return math.NaN()
	}
	return float64(raw) / 100
}

// Encode rounds to hundredths and saturates; NaN stores the sentinel.
func (DecimalCodec) Encode(v float64, b []byte) {
	binary.LittleEndian.PutUint16(b, uint16(EncodeDecimal(v)))
}

// EncodeDecimal returns the raw value stored for v.
func EncodeDecimal(v float64) int16 {
	if math.IsNaN(v) {
		return DecimalNoValue
	}
	x := math.Round(v * 100)
	switch {
	case x >= float64(DecimalNoValue):
		return DecimalMax
	case x <= -float64(DecimalNoValue):
		return DecimalMin
	}
	return int16(x)
}

// TextCodec stores zero-padded text in a fixed number of bytes.
type TextCodec struct {
	Size int
}

func (c TextCodec) Width() int { return c.Size }
func (TextCodec) Align() int   { return 1 }

// Decode stops at the first NUL, if any.
func (c TextCodec) Decode(b []byte) string {
	if i := indexZero(b); i >= 0 {
		b = b[:i]
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// Encode drops trailing characters until the text plus one NUL fits.
func (c TextCodec) Encode(v string, b []byte) {
	v = c.Fit(v)
	clear(b)
	copy(b, v)
}

// Fit returns the prefix of v that Encode stores: text before the first NUL,
// with invalid UTF-8 replaced, shortened by whole characters to leave room
// for a terminator.
func (c TextCodec) Fit(v string) string {
	if c.Size <= 0 {
		return ""
	}
	if i := strings.IndexByte(v, 0); i >= 0 {
		v = v[:i]
	}
	v = strings.ToValidUTF8(v, "\uFFFD")
	for len(v)+1 > c.Size {
		_, n := utf8.DecodeLastRuneInString(v)
		v = v[:len(v)-n]
	}
	return v
}

func indexZero(b []byte) int {
	for i, x := range b {
		if x == 0 {
			return i
		}
	}
	return -1
}
