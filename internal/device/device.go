// Package device selects the compute device that models are bound to.
//
// Only the CPU device is implemented. The cuda name is recognised so that
// configuration errors are reported clearly instead of as unknown names.
package device

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

const (
	CPU  = "cpu"
	CUDA = "cuda"
	Auto = "auto"
)

// Environment variables read by Default and by the glow CLI flags.
const (
	EnvDevice  = "GLOW_DEVICE"
	EnvThreads = "GLOW_THREADS"
)

// Device is an explicit handle passed to model constructors.
// Workers bounds the goroutines a single forward pass may fan out to.
type Device struct {
	Name    string
	Workers int
}

func (d Device) String() string {
	return fmt.Sprintf("%s(workers=%d)", d.Name, d.Workers)
}

// Normalize validates a device name. Empty selects auto.
func Normalize(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return Auto, nil
	}
	switch n {
	case CPU, CUDA, Auto:
		return n, nil
	default:
		return "", fmt.Errorf("unknown device %q (expected auto, cpu, or cuda)", name)
	}
}

// Available returns a comma-separated list of devices usable in this build.
func Available() string {
	return CPU
}

// Open resolves name into a Device. threads <= 0 uses GOMAXPROCS.
func Open(name string, threads int) (Device, error) {
	n, err := Normalize(name)
	if err != nil {
		return Device{}, err
	}
	if n == CUDA {
		return Device{}, fmt.Errorf("cuda device is not available in this build (available: %s)", Available())
	}
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	return Device{Name: CPU, Workers: threads}, nil
}

var (
	defaultOnce sync.Once
	defaultDev  Device
	defaultErr  error
)

// Default returns the process-wide device, resolved once from GLOW_DEVICE and
// GLOW_THREADS. Later changes to the environment are ignored.
func Default() (Device, error) {
	defaultOnce.Do(func() {
		threads := 0
		if v := strings.TrimSpace(os.Getenv(EnvThreads)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				defaultErr = fmt.Errorf("%s: %w", EnvThreads, err)
				return
			}
			threads = n
		}
		defaultDev, defaultErr = Open(os.Getenv(EnvDevice), threads)
	})
	return defaultDev, defaultErr
}
