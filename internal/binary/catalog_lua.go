package binary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/ZebulonRouseFrantzich/ffdep/internal/platform"
)

// ParseError represents a catalog override parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// sandboxLuaVM removes everything that could touch the system: os, io,
// module loading, and debug. string, table, and math stay available.
func sandboxLuaVM(L *lua.LState) {
	L.SetGlobal("os", lua.LNil)
	L.SetGlobal("io", lua.LNil)

	L.SetGlobal("require", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)

	L.SetGlobal("debug", lua.LNil)
}

func newSandboxedVM() *lua.LState {
	L := lua.NewState()
	sandboxLuaVM(L)
	return L
}

// LoadCatalogOverrides reads a Lua file defining a global `catalog` table and
// merges its entries over base:
//
//	catalog = {
//	  ["linux/arm64"] = {
//	    url = "https://mirror.example/ffmpeg-arm64.tar.xz",
//	    archive = "ffmpeg-arm64.tar.xz",
//	    executable = "ffmpeg",
//	  },
//	}
//
// The read-only `platform` table is available to the file.
func LoadCatalogOverrides(ctx context.Context, path string, base *Catalog, info *platform.Info) (*Catalog, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog overrides: %w", err)
	}
	return ParseCatalogOverrides(ctx, string(src), base, info)
}

// ParseCatalogOverrides is LoadCatalogOverrides on an in-memory script.
func ParseCatalogOverrides(ctx context.Context, luaCode string, base *Catalog, info *platform.Info) (*Catalog, error) {
	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if info != nil {
		if err := platform.InjectPlatformTable(L, info); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		return nil, &ParseError{
			Message: "Lua error in catalog overrides",
			Detail:  err.Error(),
		}
	}

	catalogVal := L.GetGlobal("catalog")
	if catalogVal.Type() != lua.LTTable {
		return nil, &ParseError{
			Message: "missing or invalid 'catalog' table",
			Detail:  fmt.Sprintf("expected table, got %s", catalogVal.Type()),
		}
	}

	result := base
	var parseErr error
	catalogVal.(*lua.LTable).ForEach(func(k, v lua.LValue) {
		if parseErr != nil {
			return
		}
		key, ok := k.(lua.LString)
		if !ok {
			parseErr = &ParseError{Message: "catalog keys must be strings", Detail: k.String()}
			return
		}
		entry, ok := v.(*lua.LTable)
		if !ok {
			parseErr = &ParseError{Message: fmt.Sprintf("catalog[%q] must be a table", string(key)), Detail: v.Type().String()}
			return
		}
		d, err := descriptorFromTable(string(key), entry)
		if err != nil {
			parseErr = err
			return
		}
		result = result.With(string(key), d)
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return result, nil
}

func descriptorFromTable(key string, t *lua.LTable) (Descriptor, error) {
	field := func(name string) string {
		if s, ok := t.RawGetString(name).(lua.LString); ok {
			return string(s)
		}
		return ""
	}

	d := Descriptor{
		URL:            field("url"),
		ArchiveName:    field("archive"),
		InnerPath:      field("inner_path"),
		ExecutableName: field("executable"),
		ChecksumURL:    field("checksum_url"),
		SignatureURL:   field("signature_url"),
	}

	if d.URL == "" {
		return Descriptor{}, &ParseError{Message: fmt.Sprintf("catalog[%q] is missing url", key), Detail: "url is required"}
	}
	if d.ExecutableName == "" {
		return Descriptor{}, &ParseError{Message: fmt.Sprintf("catalog[%q] is missing executable", key), Detail: "executable is required"}
	}
	if d.ArchiveName == "" {
		d.ArchiveName = archiveNameFromURL(d.URL)
	}

	for _, f := range []struct{ name, value string }{
		{"archive", d.ArchiveName},
		{"executable", d.ExecutableName},
	} {
		if !isPlainName(f.value) {
			return Descriptor{}, &ParseError{
				Message: fmt.Sprintf("catalog[%q] has an invalid %s", key, f.name),
				Detail:  fmt.Sprintf("%q must be a file name without directories", f.value),
			}
		}
	}
	if d.InnerPath != "" && !filepath.IsLocal(filepath.FromSlash(d.InnerPath)) {
		return Descriptor{}, &ParseError{
			Message: fmt.Sprintf("catalog[%q] has an invalid inner_path", key),
			Detail:  fmt.Sprintf("%q must be a relative path inside the archive", d.InnerPath),
		}
	}

	return d, nil
}

// isPlainName reports whether name is a single path element that stays
// inside the directory it is joined to.
func isPlainName(name string) bool {
	return name != "." && filepath.IsLocal(name) && !strings.ContainsAny(name, `/\`)
}
