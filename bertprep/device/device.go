// Package device resolves the compute device for model execution and wraps
// modules for data parallelism across accelerators.
package device

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupportedDevice = errors.New("only 'cpu' and 'gpu' devices are supported")
	ErrUnavailableDevice = errors.New("CUDA device not available")
)

// Kind is the requested class of compute device.
type Kind string

const (
	CPU Kind = "cpu"
	GPU Kind = "gpu"
)

// Device identifies the primary device a module runs on.
type Device struct {
	Kind  Kind
	Index int
}

func (d Device) String() string {
	if d.Kind == GPU {
		return fmt.Sprintf("cuda:%d", d.Index)
	}
	return string(CPU)
}

// ExecutionProvider returns the ONNX Runtime execution provider for the device.
func (d Device) ExecutionProvider() string {
	if d.Kind == GPU {
		return "cuda"
	}
	return "cpu"
}

// Prober counts the accelerators visible to this process.
type Prober interface {
	Count() (int, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func() (int, error)

func (f ProberFunc) Count() (int, error) { return f() }

// Option configures Select.
type Option func(*selectConfig)

type selectConfig struct {
	prober Prober
}

// WithProber replaces the default NVIDIA prober.
func WithProber(p Prober) Option {
	return func(c *selectConfig) { c.prober = p }
}

// Select resolves kind into a device and the number of parallel devices to use.
// numDevices nil means every available accelerator; a cap above the available
// count is lowered to it with a warning. CPU always yields zero devices.
func Select(kind string, numDevices *int, opts ...Option) (Device, int, error) {
	cfg := selectConfig{prober: NewNvidiaProber()}
	for _, o := range opts {
		o(&cfg)
	}

	switch Kind(kind) {
	case GPU:
		available, err := cfg.prober.Count()
		if err != nil {
			return Device{}, 0, fmt.Errorf("%w: %v", ErrUnavailableDevice, err)
		}
		if available == 0 {
			return Device{}, 0, ErrUnavailableDevice
		}
		n := available
		if numDevices != nil {
			n = *numDevices
			if n > available {
				slog.Warn(fmt.Sprintf("Only %d devices are available. Setting the number of devices to %d", available, available))
				n = available
			}
		}
		return Device{Kind: GPU, Index: 0}, n, nil
	case CPU:
		return Device{Kind: CPU}, 0, nil
	default:
		return Device{}, 0, fmt.Errorf("%w: %q", ErrUnsupportedDevice, kind)
	}
}

// NvidiaProber counts GPUs registered by the NVIDIA kernel driver, honoring
// CUDA_VISIBLE_DEVICES.
type NvidiaProber struct {
	Root string
}

func NewNvidiaProber() *NvidiaProber {
	return &NvidiaProber{Root: "/proc/driver/nvidia/gpus"}
}

func (p *NvidiaProber) Count() (int, error) {
	entries, err := os.ReadDir(p.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("probe %s: %w", filepath.Clean(p.Root), err)
	}
	physical := 0
	for _, e := range entries {
		if e.IsDir() {
			physical++
		}
	}
	visible, ok := os.LookupEnv("CUDA_VISIBLE_DEVICES")
	if !ok {
		return physical, nil
	}
	return min(physical, countVisible(visible)), nil
}

// countVisible counts CUDA_VISIBLE_DEVICES entries up to the first invalid one.
func countVisible(v string) int {
	n := 0
	for _, f := range strings.Split(v, ",") {
		f = strings.TrimSpace(f)
		if f == "" || strings.HasPrefix(f, "-") {
			break
		}
		n++
	}
	return n
}
