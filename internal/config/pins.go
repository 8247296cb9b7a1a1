package config

import (
	"sort"
	"strings"
)

// PinPrefix is the key prefix shared by the config file and the serial decoder.
const PinPrefix = "Pin_"

// PinKey builds the pin mapping key for a raw channel token ("1" -> "Pin_1").
func PinKey(channel string) string {
	return PinPrefix + channel
}

// Application returns the application mapped to pinKey.
//
// ok is false when the key is not configured at all; an empty name with
// ok=true means the pin exists but is unassigned.
func (c Config) Application(pinKey string) (name string, ok bool) {
	name, ok = c.Pins[pinKey]
	return name, ok
}

// Applications returns the distinct non-empty application names referenced by Pins, sorted.
func (c Config) Applications() []string {
	seen := make(map[string]struct{}, len(c.Pins))
	apps := make([]string, 0, len(c.Pins))
	for _, app := range c.Pins {
		if strings.TrimSpace(app) == "" {
			continue
		}
		if _, dup := seen[app]; dup {
			continue
		}
		seen[app] = struct{}{}
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return apps
}

// UnassignedPins returns the sorted pin keys whose application value is empty.
func (c Config) UnassignedPins() []string {
	keys := make([]string, 0)
	for key, app := range c.Pins {
		if strings.TrimSpace(app) == "" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func clonePins(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
