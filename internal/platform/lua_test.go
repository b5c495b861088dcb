package platform

import (
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func evalLua(t *testing.T, L *lua.LState, code string) lua.LValue {
	t.Helper()
	if err := L.DoString(code); err != nil {
		t.Fatalf("failed to execute code: %v", err)
	}
	got := L.Get(-1)
	L.Pop(1)
	return got
}

func TestInjectPlatformTable(t *testing.T) {
	tests := []struct {
		name string
		info *Info
		want map[string]lua.LValue
	}{
		{
			name: "linux_arm64",
			info: &Info{
				OS:         "linux",
				Arch:       "arm64",
				ArchRaw:    "arm64",
				KernelArch: "aarch64",
				Platform:   "ubuntu",
				Family:     "debian",
				Version:    "22.04",
			},
			want: map[string]lua.LValue{
				`return platform.os`:               lua.LString("linux"),
				`return platform.arch`:             lua.LString("arm64"),
				`return platform.kernel_arch`:      lua.LString("aarch64"),
				`return platform.key`:              lua.LString("linux/arm64"),
				`return platform.is_linux`:         lua.LTrue,
				`return platform.is_arm`:           lua.LTrue,
				`return platform.is_apple_silicon`: lua.LFalse,
				`return platform.distro.family`:    lua.LString("debian"),
				`return platform.distro.version`:   lua.LString("22.04"),
			},
		},
		{
			name: "darwin_rosetta",
			info: &Info{
				OS:         "darwin",
				Arch:       "amd64",
				ArchRaw:    "amd64",
				Translated: true,
			},
			want: map[string]lua.LValue{
				`return platform.is_macos`:         lua.LTrue,
				`return platform.is_amd64`:         lua.LTrue,
				`return platform.is_translated`:    lua.LTrue,
				`return platform.is_apple_silicon`: lua.LTrue,
				`return platform.distro`:           lua.LNil,
			},
		},
		{
			name: "windows_amd64",
			info: &Info{OS: "windows", Arch: "amd64", ArchRaw: "amd64"},
			want: map[string]lua.LValue{
				`return platform.is_windows`: lua.LTrue,
				`return platform.is_arm64`:   lua.LFalse,
				`return platform.key`:        lua.LString("windows/amd64"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			L := lua.NewState()
			defer L.Close()

			if err := InjectPlatformTable(L, tt.info); err != nil {
				t.Fatalf("InjectPlatformTable() error = %v", err)
			}

			for code, want := range tt.want {
				got := evalLua(t, L, code)
				if got.Type() != want.Type() || got.String() != want.String() {
					t.Errorf("%s: got %v (%v), want %v (%v)", code, got, got.Type(), want, want.Type())
				}
			}
		})
	}
}

func TestPlatformTable_ReadOnly(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	if err := InjectPlatformTable(L, &Info{OS: "linux", Arch: "amd64"}); err != nil {
		t.Fatalf("InjectPlatformTable() error = %v", err)
	}

	tests := []struct {
		name string
		code string
	}{
		{"modify os", `platform.os = "windows"`},
		{"add new field", `platform.new_field = "value"`},
		{"modify boolean", `platform.is_linux = false`},
		{"swap metatable", `setmetatable(platform, {})`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := L.DoString(tt.code); err == nil {
				t.Error("expected error when modifying read-only table, got nil")
			}
		})
	}
}

func TestPlatformTable_WhenHelper(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	if err := InjectPlatformTable(L, &Info{OS: "darwin", Arch: "arm64"}); err != nil {
		t.Fatalf("InjectPlatformTable() error = %v", err)
	}

	tests := []struct {
		name string
		code string
		want lua.LValue
	}{
		{"when true returns value", `return platform.when(true, "x")`, lua.LString("x")},
		{"when false returns nil", `return platform.when(false, "x")`, lua.LNil},
		{"when apple silicon", `return platform.when(platform.is_apple_silicon, "arm-build")`, lua.LString("arm-build")},
		{"when windows", `return platform.when(platform.is_windows, "win-build")`, lua.LNil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evalLua(t, L, tt.code)
			if got.Type() != tt.want.Type() || got.String() != tt.want.String() {
				t.Errorf("value mismatch: got %v, want %v", got, tt.want)
			}
		})
	}
}
