package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/thermoctl/internal/link"
	"github.com/danmuck/thermoctl/internal/thermo"
)

func TestLoadSimConfigDefaultsAndOverrides(t *testing.T) {
	cfg, err := loadSimConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:7401" {
		t.Fatalf("unexpected addr: %q", cfg.Server.Addr)
	}
	if cfg.Server.Endpoint != link.DefaultEndpoint() {
		t.Fatalf("unexpected endpoint: %v", cfg.Server.Endpoint)
	}
	if cfg.Server.DropEvery != 7 {
		t.Fatalf("unexpected drop_every: %d", cfg.Server.DropEvery)
	}
	if cfg.Server.ProcessDelay != 20*time.Millisecond {
		t.Fatalf("unexpected process delay: %v", cfg.Server.ProcessDelay)
	}
	if cfg.FeedInterval != 500*time.Millisecond {
		t.Fatalf("unexpected feed interval: %v", cfg.FeedInterval)
	}
	if cfg.Seed != 42 {
		t.Fatalf("unexpected seed: %d", cfg.Seed)
	}
	if cfg.Fixture.TimeZone.UTCOffset != 60 || cfg.Fixture.TimeZone.End.Month != 10 || cfg.Fixture.TimeZone.Start.Week != -1 {
		t.Fatalf("unexpected time zone: %+v", cfg.Fixture.TimeZone)
	}
	if len(cfg.Fixture.Nodes) != 3 {
		t.Fatalf("unexpected nodes: %+v", cfg.Fixture.Nodes)
	}
	want, _ := thermo.ParseAddress("c0:ff:ee:00:00:03")
	if cfg.Fixture.Nodes[2].Address != want || cfg.Fixture.Nodes[2].Channel != 1 || cfg.Fixture.Nodes[2].Name != "garage" {
		t.Fatalf("unexpected node: %+v", cfg.Fixture.Nodes[2])
	}
	if len(cfg.Fixture.Channels) != 2 || cfg.Fixture.Channels[1].Function != thermo.FuncMin {
		t.Fatalf("unexpected channels: %+v", cfg.Fixture.Channels)
	}
}

func TestLoadSimConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.toml")
	if err := os.WriteFile(path, []byte("seed = 3\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := loadSimConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:7400" || cfg.FeedInterval != time.Second || cfg.Seed != 3 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.Fixture.Nodes) != 0 {
		t.Fatalf("expected no nodes got=%d", len(cfg.Fixture.Nodes))
	}
}

func TestLoadSimConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"duration": "process_delay = \"later\"\n",
		"address":  "[[nodes]]\naddress = \"zz\"\n",
		"function": "[[channels]]\nfunction = \"median\"\n",
		"drop":     "drop_every = -2\n",
		"endpoint": "service = \"x\"\n",
	}
	for name, body := range cases {
		path := filepath.Join(t.TempDir(), name+".toml")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := loadSimConfig(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
