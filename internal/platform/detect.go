package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using actual platform detection.
type RealDetector struct {
	goos   string
	goarch string
	// Swapped in tests.
	kernelArch   func() (string, error)
	translated   func() bool
	platformInfo func(ctx context.Context) (string, string, string, error)
}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{
		goos:         runtime.GOOS,
		goarch:       runtime.GOARCH,
		kernelArch:   host.KernelArch,
		translated:   processTranslated,
		platformInfo: host.PlatformInformationWithContext,
	}
}

// Detect performs platform detection and returns platform information.
//
// Distro and kernel lookups are best effort: a failure leaves those fields
// empty. Only a cancelled context is a hard failure.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:      d.goos,
		ArchRaw: d.goarch,
		Arch:    NormalizeArch(d.goarch),
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("platform detection cancelled: %w", err)
	}

	if kernel, err := d.kernelArch(); err == nil {
		info.KernelArch = kernel
	}

	if info.OS == "darwin" && info.Arch == "amd64" && d.translated() {
		info.Translated = true
	}

	if info.OS == "linux" {
		platform, family, version, err := d.platformInfo(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
			}
			return info, nil
		}

		platform = normalizePlatform(platform)
		if platform != "" {
			info.Platform = platform
			info.Family = mapFamily(family)
			info.Version = normalizePlatform(version)
		}
	}

	return info, nil
}
