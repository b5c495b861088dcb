package binary

import (
	"fmt"
	"sort"

	"github.com/ZebulonRouseFrantzich/ffdep/internal/platform"
)

// Descriptor says where and how to obtain ffmpeg for one platform.
type Descriptor struct {
	URL            string
	ArchiveName    string // scratch file name; its suffix selects the extractor
	InnerPath      string // directory of the executable inside the extracted tree, "" for root
	ExecutableName string
	ChecksumURL    string // optional page whose text carries a SHA-256 digest
	SignatureURL   string // optional detached OpenPGP signature of the archive
}

// Catalog maps "os/arch" keys to descriptors.
type Catalog struct {
	entries map[string]Descriptor
}

const (
	btbnBase    = "https://github.com/BtbN/FFmpeg-Builds/releases/download/latest/"
	staticBase  = "https://johnvansickle.com/ffmpeg/releases/"
	evermeetZip = "https://evermeet.cx/ffmpeg/getrelease/zip"
	// JSON release info; its download.zip.sha256 field is picked up by extractChecksum.
	evermeetInfo = "https://evermeet.cx/ffmpeg/info/ffmpeg/release"
)

// DefaultCatalog returns the built-in descriptors.
func DefaultCatalog() *Catalog {
	return &Catalog{entries: map[string]Descriptor{
		"windows/amd64": {
			URL:            btbnBase + "ffmpeg-master-latest-win64-gpl.zip",
			ArchiveName:    "ffmpeg-master-latest-win64-gpl.zip",
			InnerPath:      "ffmpeg-master-latest-win64-gpl/bin",
			ExecutableName: "ffmpeg.exe",
		},
		"windows/arm64": {
			URL:            btbnBase + "ffmpeg-master-latest-winarm64-gpl.zip",
			ArchiveName:    "ffmpeg-master-latest-winarm64-gpl.zip",
			InnerPath:      "ffmpeg-master-latest-winarm64-gpl/bin",
			ExecutableName: "ffmpeg.exe",
		},
		"linux/amd64": {
			URL:            staticBase + "ffmpeg-release-amd64-static.tar.xz",
			ArchiveName:    "ffmpeg-release-amd64-static.tar.xz",
			ExecutableName: "ffmpeg",
		},
		"linux/arm64": {
			URL:            staticBase + "ffmpeg-release-arm64-static.tar.xz",
			ArchiveName:    "ffmpeg-release-arm64-static.tar.xz",
			ExecutableName: "ffmpeg",
		},
		"linux/arm": {
			URL:            staticBase + "ffmpeg-release-armhf-static.tar.xz",
			ArchiveName:    "ffmpeg-release-armhf-static.tar.xz",
			ExecutableName: "ffmpeg",
		},
		"linux/386": {
			URL:            staticBase + "ffmpeg-release-i686-static.tar.xz",
			ArchiveName:    "ffmpeg-release-i686-static.tar.xz",
			ExecutableName: "ffmpeg",
		},
		"darwin/amd64": {
			URL:            evermeetZip,
			ArchiveName:    "ffmpeg-macos-x86_64.zip",
			ExecutableName: "ffmpeg",
			ChecksumURL:    evermeetInfo,
		},
		"darwin/arm64": {
			URL:            "https://www.osxexperts.net/ffmpeg71arm.zip",
			ArchiveName:    "ffmpeg-macos-arm64.zip",
			ExecutableName: "ffmpeg",
		},
	}}
}

// CatalogKey builds the lookup key for an OS and architecture.
func CatalogKey(goos, arch string) string {
	return goos + "/" + arch
}

// Resolve returns the descriptor for (goos, arch). ARM variants without an
// exact entry fall back to the arm64 entry for the same OS.
func (c *Catalog) Resolve(goos, arch string) (Descriptor, error) {
	if d, ok := c.entries[CatalogKey(goos, arch)]; ok {
		return d, nil
	}
	if platform.IsARMArch(arch) {
		if d, ok := c.entries[CatalogKey(goos, "arm64")]; ok {
			return d, nil
		}
	}
	return Descriptor{}, newError(KindUnsupportedPlatform, "resolve descriptor",
		fmt.Errorf("no ffmpeg build known for %s", CatalogKey(goos, arch)))
}

// Lookup returns the exact entry for key.
func (c *Catalog) Lookup(key string) (Descriptor, bool) {
	d, ok := c.entries[key]
	return d, ok
}

// Keys returns the catalog keys in sorted order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// With returns a copy of c with key set to d.
func (c *Catalog) With(key string, d Descriptor) *Catalog {
	entries := make(map[string]Descriptor, len(c.entries)+1)
	for k, v := range c.entries {
		entries[k] = v
	}
	entries[key] = d
	return &Catalog{entries: entries}
}
