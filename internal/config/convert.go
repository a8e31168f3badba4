package config

import (
	"github.com/danmuck/thermoctl/internal/link"
	"github.com/danmuck/thermoctl/internal/link/netlink"
	"github.com/danmuck/thermoctl/internal/session"
)

func (d DeviceConfig) Endpoint() (link.Endpoint, error) {
	return link.ParseEndpoint(d.Service, d.Characteristic)
}

// Link converts the device section into a netlink configuration. The config
// must have passed validation.
func (d DeviceConfig) Link() netlink.Config {
	ep, _ := d.Endpoint()
	connect, _ := parseDuration(d.ConnectTimeout)
	io, _ := parseDuration(d.IOTimeout)
	return netlink.Config{
		Address:        d.Addr,
		Endpoint:       ep,
		ConnectTimeout: connect,
		IOTimeout:      io,
	}.WithDefaults()
}

func (s SessionConfig) Session() session.Config {
	unit, _ := parseDuration(s.BackoffUnit)
	poll, _ := parseDuration(s.PollWait)
	return session.Config{
		Attempts:       s.Attempts,
		BackoffUnit:    unit,
		PollWait:       poll,
		FailFastStatus: s.FailFastStatus,
	}.WithDefaults()
}
