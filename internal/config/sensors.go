package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	addressRe  = regexp.MustCompile(`^([0-9a-f]{2}:){5}[0-9a-f]{2}$`)
	locationRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// sensorsFile is the YAML layout of SENSORS_FILE:
//
//	sensors:
//	  "6f:15:00:00:00:42": livingroom
type sensorsFile struct {
	Sensors map[string]string `yaml:"sensors"`
}

// loadSensors merges the file mapping with the SENSORS list; SENSORS wins on conflict.
func loadSensors(list, path string) (map[string]string, error) {
	out := make(map[string]string)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read SENSORS_FILE: %w", ErrConfiguration, err)
		}
		var f sensorsFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: parse SENSORS_FILE %s: %w", ErrConfiguration, path, err)
		}
		for addr, loc := range f.Sensors {
			if err := addSensor(out, addr, loc); err != nil {
				return nil, err
			}
		}
	}

	for _, entry := range splitList(list) {
		addr, loc, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("%w: invalid SENSORS entry %q (want address=location)", ErrConfiguration, entry)
		}
		if err := addSensor(out, addr, loc); err != nil {
			return nil, err
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no sensors configured (set SENSORS or SENSORS_FILE)", ErrConfiguration)
	}
	return out, nil
}

func addSensor(m map[string]string, addr, loc string) error {
	addr = strings.ToLower(strings.TrimSpace(addr))
	loc = strings.TrimSpace(loc)
	if !addressRe.MatchString(addr) {
		return fmt.Errorf("%w: invalid sensor address %q", ErrConfiguration, addr)
	}
	if !locationRe.MatchString(loc) {
		return fmt.Errorf("%w: invalid location %q for %s (letters, digits, _ and - only)", ErrConfiguration, loc, addr)
	}
	m[addr] = loc
	return nil
}
