// Package envconfig reads hypernet settings from the environment.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/born-ml/hypernet/internal/tensor"
)

var (
	// Set via HYPERNET_HOME in the environment
	Home string
	// Set via HYPERNET_DEBUG in the environment
	Debug bool
	// Set via HYPERNET_DEVICE in the environment
	Device tensor.Device
	// Set via HYPERNET_STRENGTH in the environment
	Strength float64
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"HYPERNET_HOME":     {"HYPERNET_HOME", Home, "Base directory holding the hypernetworks folder (default ~/.hypernet)"},
		"HYPERNET_DEBUG":    {"HYPERNET_DEBUG", Debug, "Show additional debug information (e.g. HYPERNET_DEBUG=1)"},
		"HYPERNET_DEVICE":   {"HYPERNET_DEVICE", Device, "Device for hypernetwork layers: cpu or webgpu (default cpu)"},
		"HYPERNET_STRENGTH": {"HYPERNET_STRENGTH", Strength, "Default patch strength (default 1.0)"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	LoadConfig()
}

func LoadConfig() {
	Home = defaultHome()
	if home := clean("HYPERNET_HOME"); home != "" {
		Home = home
	}

	Debug = false
	if debug := clean("HYPERNET_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	Device = tensor.CPU
	if device := clean("HYPERNET_DEVICE"); device != "" {
		d, err := tensor.ParseDevice(device)
		if err != nil {
			slog.Error("invalid setting, ignoring", "HYPERNET_DEVICE", device, "error", err)
		} else {
			Device = d
		}
	}

	Strength = 1.0
	if strength := clean("HYPERNET_STRENGTH"); strength != "" {
		s, err := strconv.ParseFloat(strength, 64)
		if err != nil {
			slog.Error("invalid setting, ignoring", "HYPERNET_STRENGTH", strength, "error", err)
		} else {
			Strength = s
		}
	}
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Error("failed to lookup home directory", "error", err)
		return ".hypernet"
	}
	return filepath.Join(home, ".hypernet")
}
