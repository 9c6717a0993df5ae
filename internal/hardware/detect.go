// Package hardware detects the GPU vendor available for encoding.
package hardware

import (
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Vendor identifies a hardware encoding path.
type Vendor string

// Known vendors, each mapping to an ffmpeg acceleration family.
const (
	VendorNvidia Vendor = "nvidia" // NVENC
	VendorIntel  Vendor = "intel"  // Quick Sync (QSV)
	VendorAmd    Vendor = "amd"    // VAAPI on Linux, AMF on Windows
	VendorApple  Vendor = "apple"  // VideoToolbox
	VendorCPU    Vendor = "cpu"    // software encoding
)

// String returns a human-readable vendor description.
func (v Vendor) String() string {
	switch v {
	case VendorNvidia:
		return "NVIDIA (NVENC)"
	case VendorIntel:
		return "Intel (QSV)"
	case VendorAmd:
		return "AMD (VAAPI/AMF)"
	case VendorApple:
		return "Apple (VideoToolbox)"
	default:
		return "CPU (software encoding)"
	}
}

// Info describes the detected hardware encoding path.
type Info struct {
	Vendor     Vendor `json:"vendor"`
	DevicePath string `json:"device_path,omitempty"`
}

// PCI vendor IDs as read from /sys/class/drm/*/device/vendor.
const (
	pciVendorIntel = "0x8086"
	pciVendorAmd   = "0x1002"
)

// Detect probes the host for a usable hardware encoder, falling back to CPU.
// Detection order: macOS VideoToolbox, NVIDIA, Intel discrete (renderD129),
// then the integrated render node disambiguated by PCI vendor ID.
func Detect(logger *slog.Logger) *Info {
	if logger == nil {
		logger = slog.Default()
	}

	if runtime.GOOS == "darwin" {
		logger.Info("hardware detected", slog.String("vendor", VendorApple.String()))
		return &Info{Vendor: VendorApple}
	}

	if hasNvidia() {
		logger.Info("hardware detected", slog.String("vendor", VendorNvidia.String()))
		return &Info{Vendor: VendorNvidia}
	}

	// Discrete Intel GPUs (Arc) typically enumerate as the second render node.
	if _, err := os.Stat("/dev/dri/renderD129"); err == nil {
		logger.Info("hardware detected",
			slog.String("vendor", VendorIntel.String()),
			slog.String("device", "/dev/dri/renderD129"),
		)
		return &Info{Vendor: VendorIntel, DevicePath: "/dev/dri/renderD129"}
	}

	if _, err := os.Stat("/dev/dri/renderD128"); err == nil {
		vendorID := readSysfsVendor("/sys/class/drm/renderD128/device/vendor")
		switch vendorID {
		case pciVendorIntel:
			logger.Info("hardware detected",
				slog.String("vendor", VendorIntel.String()),
				slog.String("device", "/dev/dri/renderD128"),
			)
			return &Info{Vendor: VendorIntel, DevicePath: "/dev/dri/renderD128"}
		case pciVendorAmd:
			logger.Info("hardware detected",
				slog.String("vendor", VendorAmd.String()),
				slog.String("device", "/dev/dri/renderD128"),
			)
			return &Info{Vendor: VendorAmd, DevicePath: "/dev/dri/renderD128"}
		default:
			logger.Debug("render node present but vendor unrecognized",
				slog.String("vendor_id", vendorID),
			)
		}
	}

	logger.Info("no hardware encoder detected, using CPU")
	return &Info{Vendor: VendorCPU}
}

// hasNvidia checks for an NVIDIA GPU via the control device or nvidia-smi.
func hasNvidia() bool {
	if _, err := os.Stat("/dev/nvidiactl"); err == nil {
		if out, err := exec.Command("nvidia-smi").Output(); err == nil && len(out) > 0 {
			return true
		}
		// Device node present but nvidia-smi missing; trust the node.
		return true
	}
	if err := exec.Command("nvidia-smi").Run(); err == nil {
		return true
	}
	return false
}

// readSysfsVendor reads a PCI vendor ID from sysfs.
func readSysfsVendor(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(string(data)))
}
