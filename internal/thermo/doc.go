// Package thermo declares the hub's Config and State regions on top of
// internal/memory and decodes them into named records.
//
// Config (selector 0) holds the header, time zone, 32 sensor nodes and 8
// output channels. State (selector 1) holds the clock shift, the latest
// reading per node and the aggregated temperature per channel.
package thermo
