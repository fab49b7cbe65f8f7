package gpu

import (
	"os"
	"os/exec"
)

const (
	DeviceCUDA = "cuda"
	DeviceCPU  = "cpu"
)

// Prober reports whether a CUDA-capable accelerator is usable on this host.
type Prober interface {
	Available() bool
}

// Static is a fixed probe result, used by the mock backend and in tests.
type Static bool

func (s Static) Available() bool { return bool(s) }

// CUDA probes the host for an NVIDIA accelerator.
type CUDA struct{}

func (CUDA) Available() bool {
	if _, err := os.Stat("/proc/driver/nvidia/version"); err == nil {
		return true
	}
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}

	// No driver files; ask the driver tooling directly.
	smi, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return false
	}

	return exec.Command(smi, "--list-gpus").Run() == nil
}

// Device is the device name announced in the ready handshake. It reflects
// the probe only, not whether a particular load asked for the GPU.
func Device(p Prober) string {
	if p.Available() {
		return DeviceCUDA
	}
	return DeviceCPU
}

// ResolveDevice picks the device for one model load: the accelerator is
// used only when the load requests it and the probe finds one.
func ResolveDevice(p Prober, useGPU bool) string {
	if useGPU && p.Available() {
		return DeviceCUDA
	}
	return DeviceCPU
}
