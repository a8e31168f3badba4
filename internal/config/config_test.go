package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/thermoctl/internal/link"
	"github.com/pelletier/go-toml/v2"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thermoctl.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadClientTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thermoctl.toml")
	if err := WriteTemplate(path, "client", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, "client", false); err == nil {
		t.Fatalf("expected existing file to be kept")
	}

	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	lc := cfg.Device.Link()
	if lc.Address != "127.0.0.1:7400" || lc.Endpoint != link.DefaultEndpoint() || lc.IOTimeout != 5*time.Second {
		t.Fatalf("unexpected link config got=%+v", lc)
	}
	sc := cfg.Session.Session()
	if sc.Attempts != 11 || sc.BackoffUnit != time.Second || sc.PollWait != 200*time.Millisecond {
		t.Fatalf("unexpected session config got=%+v", sc)
	}
	if cfg.Gateway.Addr != ":9200" || len(cfg.Gateway.CorsOrigins) != 1 {
		t.Fatalf("unexpected gateway config got=%+v", cfg.Gateway)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := LoadClientConfig(writeFile(t, "[session]\nfail_fast_status = true\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "thermoctl" || cfg.Device.Addr != "127.0.0.1:7400" || !cfg.Session.FailFastStatus {
		t.Fatalf("unexpected defaults got=%+v", cfg)
	}
	if sc := cfg.Session.Session(); sc.Attempts != 11 {
		t.Fatalf("expected default attempts got=%d", sc.Attempts)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad uuid":     "[device]\nservice = \"nope\"\n",
		"bad duration": "[session]\npoll_wait = \"soon\"\n",
		"negative":     "[session]\nattempts = -1\n",
		"blank addr":   "[device]\naddr = \" \"\n",
	}
	for name, body := range cases {
		if _, err := LoadClientConfig(writeFile(t, body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if _, err := LoadClientConfig(writeFile(t, "name = [")); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Fatalf("expected parse error got=%v", err)
	}
	if _, err := LoadClientConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestSimTemplateParses(t *testing.T) {
	tmpl, err := Template("sim")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	var out map[string]any
	if err := toml.Unmarshal([]byte(tmpl), &out); err != nil {
		t.Fatalf("sim template is not valid toml: %v", err)
	}
	if _, err := Template("broker"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
