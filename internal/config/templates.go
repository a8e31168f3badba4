package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client":
		return clientTemplate, nil
	case "sim":
		return simTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const clientTemplate = `name = "thermoctl"

[device]
addr = "127.0.0.1:7400"
service = "cc2af14a-2aaf-4c6e-b2e4-3856ee2b4267"
characteristic = "45cc8e0b-8507-45f7-ac95-b798d0fd732a"
connect_timeout = "5s"
io_timeout = "5s"

[session]
attempts = 11
backoff_unit = "1s"
poll_wait = "200ms"
fail_fast_status = false

[gateway]
addr = ":9200"
cors_origins = ["http://localhost:3000"]
token = ""
`

const simTemplate = `addr = "127.0.0.1:7400"
drop_every = 0
process_delay = "50ms"
feed_interval = "1s"
seed = 1

[time_zone]
utc_offset = 60
daylight_delta = 60
start = { time = 120, month = 3, day = 0, week = -1 }
end = { time = 180, month = 10, day = 0, week = -1 }

[[nodes]]
address = "c0:ff:ee:00:00:01"
channel = 0
name = "kitchen"

[[nodes]]
address = "c0:ff:ee:00:00:02"
channel = 0
name = "living room"

[[channels]]
function = "avg"
name = "ground floor"
`
