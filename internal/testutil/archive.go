package testutil

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"os"
	"testing"
)

// FixtureFile is one entry of a fixture archive.
type FixtureFile struct {
	Name string
	Body string
	Mode int64 // 0 means 0644
}

// FakeFFmpegScript prints a version banner the prober understands.
func FakeFFmpegScript(version string) string {
	return "#!/bin/sh\necho \"ffmpeg version " + version + " Copyright (c) 2000-2024 the FFmpeg developers\"\n"
}

func fixtureMode(f FixtureFile) int64 {
	if f.Mode == 0 {
		return 0o644
	}
	return f.Mode
}

// WriteTarGz writes files into a gzip-compressed tarball at path.
func WriteTarGz(t *testing.T, path string, files []FixtureFile) {
	t.Helper()

	archiveFile, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer func() { _ = archiveFile.Close() }()

	gzipWriter := gzip.NewWriter(archiveFile)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, f := range files {
		header := &tar.Header{
			Name:     f.Name,
			Mode:     fixtureMode(f),
			Size:     int64(len(f.Body)),
			Typeflag: tar.TypeReg,
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			t.Fatalf("failed to write header for %s: %v", f.Name, err)
		}
		if _, err := tarWriter.Write([]byte(f.Body)); err != nil {
			t.Fatalf("failed to write content for %s: %v", f.Name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		t.Fatalf("failed to close tar writer: %v", err)
	}
	if err := gzipWriter.Close(); err != nil {
		t.Fatalf("failed to close gzip writer: %v", err)
	}
}

// WriteZip writes files into a zip archive at path.
func WriteZip(t *testing.T, path string, files []FixtureFile) {
	t.Helper()

	archiveFile, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer func() { _ = archiveFile.Close() }()

	zipWriter := zip.NewWriter(archiveFile)
	for _, f := range files {
		header := &zip.FileHeader{Name: f.Name, Method: zip.Deflate}
		header.SetMode(os.FileMode(fixtureMode(f)))
		w, err := zipWriter.CreateHeader(header)
		if err != nil {
			t.Fatalf("failed to create entry %s: %v", f.Name, err)
		}
		if _, err := w.Write([]byte(f.Body)); err != nil {
			t.Fatalf("failed to write content for %s: %v", f.Name, err)
		}
	}

	if err := zipWriter.Close(); err != nil {
		t.Fatalf("failed to close zip writer: %v", err)
	}
}
