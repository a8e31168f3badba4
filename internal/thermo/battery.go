package thermo

import "math"

// BatteryLevel maps a cell voltage to a charge percentage using the hub's
// discharge curve: 0 below 2.75V, 100 above 3.00V.
func BatteryLevel(volts float64) int {
	if math.IsNaN(volts) {
		return 0
	}
	v := int(math.Round(volts * 100))
	switch {
	case v < 275:
		return 0
	case v > 300:
		return 100
	}
	return (32*v*v - 17412*v + 2368665) >> 8
}
