// Package platform detects the operating system and CPU architecture the
// ffmpeg catalog is keyed on.
//
// Detection uses runtime.GOOS/GOARCH, refined with gopsutil: the Linux
// distribution family (for package-manager hints) and the kernel
// architecture, which reveals an amd64 process running under Rosetta on
// Apple Silicon. The result can be injected as a read-only table into the
// Lua catalog override file.
package platform

import "context"

// Linux distribution family constants.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu, Linux Mint
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux, AlmaLinux
	FamilyFedora  = "fedora"  // Fedora
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyAlpine  = "alpine"  // Alpine Linux
	FamilyGentoo  = "gentoo"  // Gentoo
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// Info contains platform detection information.
type Info struct {
	OS         string // "linux", "darwin", "windows"
	Arch       string // normalized: "amd64", "arm64", "arm", "386", or the raw value lowercased
	ArchRaw    string // original GOARCH
	KernelArch string // machine hardware name reported by the kernel, may be empty
	Translated bool   // amd64 process running on an arm64 Mac
	Platform   string // distro ID (Linux only, e.g., "ubuntu", "arch")
	Family     string // canonical family (e.g., "debian", "rhel", "arch")
	Version    string // distro version (Linux only, e.g., "22.04")
}

// Distro contains Linux distribution information.
type Distro struct {
	ID      string
	Family  string
	Version string
}

// Key returns the "os/arch" catalog key for this platform.
func (i *Info) Key() string {
	return i.OS + "/" + i.Arch
}

// GetDistro returns distro information if this is a Linux platform.
// Returns nil for non-Linux platforms or if distro detection failed.
func (i *Info) GetDistro() *Distro {
	if i.OS != "linux" || i.Platform == "" {
		return nil
	}
	return &Distro{
		ID:      i.Platform,
		Family:  i.Family,
		Version: i.Version,
	}
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == "windows"
}

// IsAMD64 returns true if the architecture is amd64.
func (i *Info) IsAMD64() bool {
	return i.Arch == "amd64"
}

// IsARM64 returns true if the architecture is arm64.
func (i *Info) IsARM64() bool {
	return i.Arch == "arm64"
}

// IsARM reports any ARM flavour, 32 or 64 bit.
func (i *Info) IsARM() bool {
	return IsARMArch(i.Arch)
}

// IsAppleSilicon returns true on macOS with an arm64 CPU, including
// amd64 processes translated by Rosetta.
func (i *Info) IsAppleSilicon() bool {
	return i.OS == "darwin" && (i.Arch == "arm64" || i.Translated)
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}
