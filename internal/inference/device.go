// internal/inference/device.go
package inference

import (
	"errors"
	"fmt"
	"strings"
)

// Device is both a device-selection policy and, once an engine is open,
// the device it actually runs on.
type Device int

const (
	// DeviceAuto prefers CUDA and falls back to the CPU
	DeviceAuto Device = iota
	// DeviceCPU always runs on the CPU
	DeviceCPU
	// DeviceCUDA requires the CUDA execution provider
	DeviceCUDA
)

// ErrDeviceUnavailable is returned when a required accelerator cannot be used
var ErrDeviceUnavailable = errors.New("compute device unavailable")

// ParseDevice parses "auto", "cpu" or "cuda" (case-insensitive).
func ParseDevice(s string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return DeviceAuto, nil
	case "cpu":
		return DeviceCPU, nil
	case "cuda", "gpu":
		return DeviceCUDA, nil
	default:
		return DeviceAuto, fmt.Errorf("unknown device %q", s)
	}
}

func (d Device) String() string {
	switch d {
	case DeviceAuto:
		return "auto"
	case DeviceCPU:
		return "cpu"
	case DeviceCUDA:
		return "cuda"
	default:
		return fmt.Sprintf("device(%d)", int(d))
	}
}
