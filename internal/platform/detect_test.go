package platform

import (
	"context"
	"errors"
	"runtime"
	"testing"
)

func fakeDetector(goos, goarch string) *RealDetector {
	return &RealDetector{
		goos:       goos,
		goarch:     goarch,
		kernelArch: func() (string, error) { return "", errors.New("no uname") },
		translated: func() bool { return false },
		platformInfo: func(ctx context.Context) (string, string, string, error) {
			return "", "", "", errors.New("no distro")
		},
	}
}

func TestRealDetector_Detect(t *testing.T) {
	info, err := NewDetector().Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if info.OS != runtime.GOOS {
		t.Errorf("OS = %v, want %v", info.OS, runtime.GOOS)
	}
	if info.ArchRaw != runtime.GOARCH {
		t.Errorf("ArchRaw = %v, want %v", info.ArchRaw, runtime.GOARCH)
	}
	if info.Arch != NormalizeArch(runtime.GOARCH) {
		t.Errorf("Arch = %v, want %v", info.Arch, NormalizeArch(runtime.GOARCH))
	}
	if info.Platform != "" && info.Family == "" {
		t.Error("Family should be set when Platform is set")
	}
	if runtime.GOOS != "linux" && info.Platform != "" {
		t.Errorf("Platform should be empty on non-Linux, got %v", info.Platform)
	}
}

func TestRealDetector_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := fakeDetector("linux", "amd64").Detect(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestRealDetector_Rosetta(t *testing.T) {
	tests := []struct {
		name           string
		goos           string
		goarch         string
		translated     bool
		wantTranslated bool
		wantSilicon    bool
	}{
		{"native_arm64", "darwin", "arm64", false, false, true},
		{"rosetta", "darwin", "amd64", true, true, true},
		{"intel_mac", "darwin", "amd64", false, false, false},
		{"linux_ignores_flag", "linux", "amd64", true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := fakeDetector(tt.goos, tt.goarch)
			d.translated = func() bool { return tt.translated }

			info, err := d.Detect(context.Background())
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if info.Translated != tt.wantTranslated {
				t.Errorf("Translated = %v, want %v", info.Translated, tt.wantTranslated)
			}
			if info.IsAppleSilicon() != tt.wantSilicon {
				t.Errorf("IsAppleSilicon() = %v, want %v", info.IsAppleSilicon(), tt.wantSilicon)
			}
		})
	}
}

func TestRealDetector_LinuxDistro(t *testing.T) {
	d := fakeDetector("linux", "aarch64")
	d.kernelArch = func() (string, error) { return "aarch64", nil }
	d.platformInfo = func(ctx context.Context) (string, string, string, error) {
		return "Ubuntu", "debian", " 22.04 ", nil
	}

	info, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if info.Arch != "arm64" {
		t.Errorf("Arch = %q, want arm64", info.Arch)
	}
	if info.KernelArch != "aarch64" {
		t.Errorf("KernelArch = %q, want aarch64", info.KernelArch)
	}
	if info.Key() != "linux/arm64" {
		t.Errorf("Key() = %q, want linux/arm64", info.Key())
	}

	distro := info.GetDistro()
	if distro == nil {
		t.Fatal("expected distro info")
	}
	if distro.ID != "ubuntu" || distro.Family != FamilyDebian || distro.Version != "22.04" {
		t.Errorf("unexpected distro: %+v", distro)
	}
}

func TestRealDetector_DistroFailureIsGraceful(t *testing.T) {
	info, err := fakeDetector("linux", "amd64").Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if info.GetDistro() != nil {
		t.Errorf("expected nil distro, got %+v", info.GetDistro())
	}
}

func TestInfo_BooleanMethods(t *testing.T) {
	tests := []struct {
		name    string
		info    Info
		linux   bool
		macos   bool
		windows bool
		arm     bool
		arm64   bool
	}{
		{"linux_amd64", Info{OS: "linux", Arch: "amd64"}, true, false, false, false, false},
		{"linux_armhf", Info{OS: "linux", Arch: "arm"}, true, false, false, true, false},
		{"darwin_arm64", Info{OS: "darwin", Arch: "arm64"}, false, true, false, true, true},
		{"windows_amd64", Info{OS: "windows", Arch: "amd64"}, false, false, true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.IsLinux(); got != tt.linux {
				t.Errorf("IsLinux() = %v, want %v", got, tt.linux)
			}
			if got := tt.info.IsMacOS(); got != tt.macos {
				t.Errorf("IsMacOS() = %v, want %v", got, tt.macos)
			}
			if got := tt.info.IsWindows(); got != tt.windows {
				t.Errorf("IsWindows() = %v, want %v", got, tt.windows)
			}
			if got := tt.info.IsARM(); got != tt.arm {
				t.Errorf("IsARM() = %v, want %v", got, tt.arm)
			}
			if got := tt.info.IsARM64(); got != tt.arm64 {
				t.Errorf("IsARM64() = %v, want %v", got, tt.arm64)
			}
		})
	}
}
