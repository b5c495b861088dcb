package binary

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// NativeExtractor expands archives in-process, with the same strip and
// promotion rules as SystemExtractor.
type NativeExtractor struct{}

// Extract expands archivePath into destDir.
func (NativeExtractor) Extract(ctx context.Context, archivePath, destDir, innerPath, exeName string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return newError(KindFilesystem, "extract", fmt.Errorf("create dest dir: %w", err))
	}

	var err error
	switch formatOf(archivePath) {
	case formatZip:
		err = extractZip(ctx, archivePath, destDir)
	case formatTar:
		err = extractTar(ctx, archivePath, destDir)
	default:
		err = fmt.Errorf("unsupported archive format: %s", filepath.Base(archivePath))
	}
	if err != nil {
		return newError(KindExtractionToolMissing, "extract", err)
	}

	return promoteExecutable(destDir, innerPath, exeName)
}

func extractZip(ctx context.Context, archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	for _, f := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := safeTarget(destDir, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
			continue
		}
		if !f.Mode().IsRegular() {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", f.Name, err)
		}
		err = writeEntry(target, rc, f.Mode().Perm())
		rc.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

// decompressor wraps the tarball stream in the codec chosen by suffix.
func decompressor(archivePath string, r io.Reader) (io.Reader, func(), error) {
	lower := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return gz, func() { gz.Close() }, nil
	case strings.HasSuffix(lower, ".tar.xz"):
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("create xz reader: %w", err)
		}
		return xr, func() {}, nil
	case strings.HasSuffix(lower, ".tar.zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("create zstd reader: %w", err)
		}
		return zr, zr.Close, nil
	case strings.HasSuffix(lower, ".tar.bz2"):
		return bzip2.NewReader(r), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported archive format: %s", filepath.Base(archivePath))
	}
}

func extractTar(ctx context.Context, archivePath, destDir string) error {
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	stream, closeStream, err := decompressor(archivePath, archiveFile)
	if err != nil {
		return err
	}
	defer closeStream()

	tarReader := tar.NewReader(stream)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tarReader.Next()
		if err == io.EOF {
			break // End of archive
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		// Equivalent of --strip-components=1
		name := stripFirstComponent(header.Name)
		if name == "" {
			continue
		}

		target, err := safeTarget(destDir, name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}

		case tar.TypeReg:
			if err := writeEntry(target, tarReader, os.FileMode(header.Mode).Perm()); err != nil {
				return err
			}

		case tar.TypeSymlink:
			link := filepath.FromSlash(header.Linkname)
			if filepath.IsAbs(link) || !filepath.IsLocal(filepath.Join(filepath.Dir(filepath.FromSlash(name)), link)) {
				return fmt.Errorf("illegal symlink target: %s -> %s", name, header.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("create parent dir for %s: %w", target, err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("create symlink %s: %w", target, err)
			}

		default:
			// Skip other types (char devices, block devices, etc.)
			continue
		}
	}

	return nil
}

func stripFirstComponent(name string) string {
	_, rest, found := strings.Cut(strings.TrimPrefix(name, "./"), "/")
	if !found {
		return ""
	}
	return rest
}

// safeTarget rejects entries that escape destDir and resolves the rest
// without following symlinks out of it.
func safeTarget(destDir, name string) (string, error) {
	local := filepath.FromSlash(name)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("illegal file path: %s", name)
	}
	target, err := securejoin.SecureJoin(destDir, local)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", name, err)
	}
	return target, nil
}

func writeEntry(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}
	if perm == 0 {
		perm = 0644
	}
	outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	if _, err := io.Copy(outFile, r); err != nil {
		outFile.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}
	return outFile.Close()
}
