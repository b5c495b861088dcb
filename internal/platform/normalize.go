package platform

import (
	"strings"
)

// familyMap maps distribution names to their canonical family names.
var familyMap = map[string]string{
	"debian":   FamilyDebian,
	"ubuntu":   FamilyDebian, // gopsutil might return ubuntu as family
	"rhel":     FamilyRHEL,
	"centos":   FamilyRHEL,
	"rocky":    FamilyRHEL,
	"fedora":   FamilyFedora,
	"suse":     FamilySUSE,
	"opensuse": FamilySUSE,
	"arch":     FamilyArch,
	"manjaro":  FamilyArch,
	"alpine":   FamilyAlpine,
	"gentoo":   FamilyGentoo,
}

// NormalizeArch converts GOARCH and uname-style machine names to catalog names.
// Unknown values are returned lowercased rather than rejected; the catalog
// decides whether they are supported.
func NormalizeArch(arch string) string {
	a := strings.ToLower(strings.TrimSpace(arch))
	switch a {
	case "amd64", "x86_64", "x64":
		return "amd64"
	case "arm64", "aarch64", "armv8", "armv8l", "arm64e":
		return "arm64"
	case "arm", "armv7", "armv7l", "armhf":
		return "arm"
	case "386", "i386", "i686", "x86":
		return "386"
	default:
		return a
	}
}

// IsARMArch reports whether a (normalized or raw) architecture name is an ARM variant.
func IsARMArch(arch string) bool {
	a := strings.ToLower(arch)
	return strings.HasPrefix(a, "arm") || strings.HasPrefix(a, "aarch")
}

// normalizePlatform converts platform IDs to lowercase for consistency.
func normalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

// mapFamily maps distribution family strings to canonical family names.
func mapFamily(family string) string {
	normalized := strings.ToLower(strings.TrimSpace(family))
	if canonical, ok := familyMap[normalized]; ok {
		return canonical
	}
	return FamilyUnknown
}
