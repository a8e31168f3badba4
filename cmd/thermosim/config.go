package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/thermoctl/internal/device"
	"github.com/danmuck/thermoctl/internal/link"
	"github.com/danmuck/thermoctl/internal/thermo"
)

type simConfig struct {
	Server       device.ServerConfig
	Fixture      device.Fixture
	FeedInterval time.Duration
	Seed         int64
}

type fileConfig struct {
	Addr           string        `toml:"addr"`
	Service        string        `toml:"service"`
	Characteristic string        `toml:"characteristic"`
	DropEvery      int           `toml:"drop_every"`
	ProcessDelay   string        `toml:"process_delay"`
	FeedInterval   string        `toml:"feed_interval"`
	Seed           int64         `toml:"seed"`
	Version        uint8         `toml:"version"`
	TimeZone       fileTimeZone  `toml:"time_zone"`
	Nodes          []fileNode    `toml:"nodes"`
	Channels       []fileChannel `toml:"channels"`
}

type fileTimeZone struct {
	UTCOffset     int16          `toml:"utc_offset"`
	DaylightDelta int16          `toml:"daylight_delta"`
	Start         fileTransition `toml:"start"`
	End           fileTransition `toml:"end"`
}

type fileTransition struct {
	Time  int16 `toml:"time"`
	Month int8  `toml:"month"`
	Day   int8  `toml:"day"`
	Week  int8  `toml:"week"`
}

type fileNode struct {
	Address thermo.Address `toml:"address"`
	Channel uint8          `toml:"channel"`
	Name    string         `toml:"name"`
}

type fileChannel struct {
	Function thermo.ChannelFunction `toml:"function"`
	Name     string                 `toml:"name"`
}

func defaultSimConfig() simConfig {
	return simConfig{
		Server:       device.DefaultServerConfig(),
		FeedInterval: time.Second,
		Seed:         1,
	}
}

func loadSimConfig(path string) (simConfig, error) {
	cfg := defaultSimConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return simConfig{}, fmt.Errorf("load thermosim config: %w", err)
	}

	if meta.IsDefined("addr") {
		if addr := strings.TrimSpace(raw.Addr); addr != "" {
			cfg.Server.Addr = addr
		}
	}

	if meta.IsDefined("service") || meta.IsDefined("characteristic") {
		ep, err := link.ParseEndpoint(raw.Service, raw.Characteristic)
		if err != nil {
			return simConfig{}, fmt.Errorf("parse endpoint: %w", err)
		}
		cfg.Server.Endpoint = ep
	}

	if meta.IsDefined("drop_every") {
		if raw.DropEvery < 0 {
			return simConfig{}, fmt.Errorf("drop_every must not be negative")
		}
		cfg.Server.DropEvery = raw.DropEvery
	}

	if meta.IsDefined("process_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ProcessDelay))
		if err != nil {
			return simConfig{}, fmt.Errorf("parse process_delay: %w", err)
		}
		cfg.Server.ProcessDelay = d
	}

	if meta.IsDefined("feed_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.FeedInterval))
		if err != nil {
			return simConfig{}, fmt.Errorf("parse feed_interval: %w", err)
		}
		cfg.FeedInterval = d
	}

	if meta.IsDefined("seed") {
		cfg.Seed = raw.Seed
	}

	if meta.IsDefined("version") {
		cfg.Fixture.Version = raw.Version
	}

	if meta.IsDefined("time_zone") {
		cfg.Fixture.TimeZone = thermo.TimeZone{
			UTCOffset:     raw.TimeZone.UTCOffset,
			DaylightDelta: raw.TimeZone.DaylightDelta,
			Start:         raw.TimeZone.Start.transition(),
			End:           raw.TimeZone.End.transition(),
		}
	}

	if len(raw.Nodes) > thermo.NodeCount {
		return simConfig{}, fmt.Errorf("too many nodes: %d > %d", len(raw.Nodes), thermo.NodeCount)
	}
	for _, n := range raw.Nodes {
		cfg.Fixture.Nodes = append(cfg.Fixture.Nodes, thermo.NodeInfo{
			Address: n.Address,
			Channel: n.Channel,
			Name:    strings.TrimSpace(n.Name),
		})
	}

	if len(raw.Channels) > thermo.ChannelCount {
		return simConfig{}, fmt.Errorf("too many channels: %d > %d", len(raw.Channels), thermo.ChannelCount)
	}
	for _, c := range raw.Channels {
		cfg.Fixture.Channels = append(cfg.Fixture.Channels, thermo.ChannelInfo{
			Function: c.Function,
			Name:     strings.TrimSpace(c.Name),
		})
	}

	return cfg, nil
}

func (t fileTransition) transition() thermo.Transition {
	return thermo.Transition{Time: t.Time, Month: t.Month, Day: t.Day, Week: t.Week}
}
