package install

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
)

// maxExtractedBytes caps total decompressed output per archive, a
// zip-bomb guard: a well-formed installer archive is never anywhere
// close to this size (spec.md §4.7).
const maxExtractedBytes = 4 << 30 // 4 GiB

// ExtractArchive extracts archivePath (whose format is inferred from its
// suffix) into destDir, which must already exist. Every entry path is
// checked for traversal (".." segments or absolute paths) before being
// joined against destDir, and total bytes written are capped at
// maxExtractedBytes.
func ExtractArchive(archivePath, destDir string) error {
	switch {
	case hasAnySuffix(archivePath, ".tar.gz", ".tgz"):
		return extractTar(archivePath, destDir, gzipReader)
	case hasAnySuffix(archivePath, ".tar.xz", ".txz"):
		return extractTar(archivePath, destDir, xzReader)
	case hasAnySuffix(archivePath, ".tar.bz2", ".tbz2"):
		return extractTar(archivePath, destDir, bzip2Reader)
	case hasAnySuffix(archivePath, ".tar.zst", ".tzst"):
		return extractTar(archivePath, destDir, zstdReader)
	case strings.HasSuffix(archivePath, ".zip"):
		return extractZip(archivePath, destDir)
	default:
		return apperrors.New(apperrors.Validation, fmt.Sprintf("unsupported archive format: %s", archivePath))
	}
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

type decompressFunc func(io.Reader) (io.Reader, func() error, error)

func gzipReader(r io.Reader) (io.Reader, func() error, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, nil, err
	}
	return gz, gz.Close, nil
}

func xzReader(r io.Reader) (io.Reader, func() error, error) {
	x, err := xz.NewReader(r)
	if err != nil {
		return nil, nil, err
	}
	return x, func() error { return nil }, nil
}

func bzip2Reader(r io.Reader) (io.Reader, func() error, error) {
	return bzip2.NewReader(r), func() error { return nil }, nil
}

func zstdReader(r io.Reader) (io.Reader, func() error, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, nil, err
	}
	return zr, func() error { zr.Close(); return nil }, nil
}

func extractTar(archivePath, destDir string, decompress decompressFunc) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return apperrors.Wrap(apperrors.Installation, err, "open archive")
	}
	defer f.Close()

	reader, closeFn, err := decompress(f)
	if err != nil {
		return apperrors.Wrap(apperrors.Installation, err, "initialize decompressor")
	}
	defer closeFn()

	tr := tar.NewReader(reader)
	var written int64

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return apperrors.Wrap(apperrors.Installation, err, "read tar entry")
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return apperrors.Wrap(apperrors.Installation, err, "create directory from archive")
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return apperrors.Wrap(apperrors.Installation, err, "create parent directory")
			}
			n, err := writeCapped(target, tr, os.FileMode(hdr.Mode&0o777), maxExtractedBytes-written)
			if err != nil {
				return err
			}
			written += n
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return apperrors.Wrap(apperrors.Installation, err, "create parent directory")
			}
			if _, err := safeJoin(destDir, filepath.Join(filepath.Dir(hdr.Name), hdr.Linkname)); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return apperrors.Wrap(apperrors.Installation, err, "create symlink from archive")
			}
		default:
			// Skip device nodes, fifos, and other non-regular entries.
		}

		if written > maxExtractedBytes {
			return apperrors.New(apperrors.Security, "archive exceeds maximum allowed extracted size")
		}
	}
	return nil
}

func extractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return apperrors.Wrap(apperrors.Installation, err, "open zip archive")
	}
	defer r.Close()

	var written int64
	for _, f := range r.File {
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return apperrors.Wrap(apperrors.Installation, err, "create directory from zip")
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return apperrors.Wrap(apperrors.Installation, err, "create parent directory")
		}

		rc, err := f.Open()
		if err != nil {
			return apperrors.Wrap(apperrors.Installation, err, "open zip entry")
		}
		n, err := writeCapped(target, rc, f.Mode().Perm(), maxExtractedBytes-written)
		rc.Close()
		if err != nil {
			return err
		}
		written += n
		if written > maxExtractedBytes {
			return apperrors.New(apperrors.Security, "archive exceeds maximum allowed extracted size")
		}
	}
	return nil
}

// safeJoin joins destDir and name, rejecting any result that escapes
// destDir via ".." traversal or an absolute path embedded in the archive.
func safeJoin(destDir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", apperrors.New(apperrors.Security, fmt.Sprintf("archive entry has absolute path: %s", name))
	}
	clean := filepath.Clean(filepath.Join(destDir, name))
	destClean := filepath.Clean(destDir)
	if clean != destClean && !strings.HasPrefix(clean, destClean+string(filepath.Separator)) {
		return "", apperrors.New(apperrors.Security, fmt.Sprintf("archive entry escapes destination: %s", name))
	}
	return clean, nil
}

func writeCapped(target string, r io.Reader, mode os.FileMode, remaining int64) (int64, error) {
	if remaining <= 0 {
		return 0, apperrors.New(apperrors.Security, "archive exceeds maximum allowed extracted size")
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.Installation, err, "create extracted file")
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(r, remaining+1))
	if err != nil {
		return n, apperrors.Wrap(apperrors.Installation, err, "write extracted file")
	}
	if n > remaining {
		return n, apperrors.New(apperrors.Security, "archive exceeds maximum allowed extracted size")
	}
	return n, nil
}

// FindBinary searches dir recursively for a non-directory entry named
// binaryName, used by the move_binary strategy after extraction. The
// entry's mode is not checked.
func FindBinary(dir, binaryName string) (string, error) {
	var found string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || found != "" {
			return nil
		}
		if !info.IsDir() && info.Name() == binaryName {
			found = path
		}
		return nil
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.Installation, err, "search for binary in extracted archive")
	}
	if found == "" {
		return "", apperrors.New(apperrors.Installation, fmt.Sprintf("binary %q not found in archive", binaryName))
	}
	return found, nil
}
