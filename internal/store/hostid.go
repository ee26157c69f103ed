package store

import (
	"os"
	"strings"
)

// HostID returns a stable identifier for the current machine. /etc/machine-id
// is preferred where present (systemd-based Linux); the hostname is a
// portable fallback everywhere else. Nothing here needs to be secret —
// it only needs to be stable across opens on the same machine. Exported
// for internal/cliconfig, which seals the same way this package seals
// service.machine_id.
func HostID() ([]byte, error) {
	return hostID()
}

func hostID() ([]byte, error) {
	if b, err := os.ReadFile("/etc/machine-id"); err == nil {
		return []byte(strings.TrimSpace(string(b))), nil
	}
	name, err := os.Hostname()
	if err != nil {
		return nil, err
	}
	return []byte(name), nil
}
