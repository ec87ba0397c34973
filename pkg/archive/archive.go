// Package archive extracts the uploaded data containers into a staging
// subdirectory. Extraction is all-or-nothing from the caller's point of view:
// any mid-stream error is returned and the caller discards the whole staging
// area, so a corrupt archive can never feed a partial data set downstream.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type Format int

const (
	FormatTarGz Format = iota + 1
	FormatTar
	FormatZip
)

// Detect classifies a file name by its archive suffix. The second return is
// false for anything that is not a supported container.
func Detect(name string) (Format, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz, true
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, true
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, true
	}
	return 0, false
}

func (f Format) Ext() string {
	switch f {
	case FormatTarGz:
		return ".tar.gz"
	case FormatTar:
		return ".tar"
	case FormatZip:
		return ".zip"
	}
	return ""
}

// Extract unpacks the archive at path into destDir, creating it if needed.
func Extract(path string, format Format, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	switch format {
	case FormatTarGz, FormatTar:
		return extractTar(path, format, destDir)
	case FormatZip:
		return extractZip(path, destDir)
	}
	return fmt.Errorf("unsupported archive format")
}

func extractTar(path string, format Format, destDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var reader io.Reader = f
	if format == FormatTarGz {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("read gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	tr := tar.NewReader(reader)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar stream: %w", err)
		}

		target, err := secureJoin(destDir, header.Name)
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr); err != nil {
				return err
			}
		default:
			// Links and devices have no business in a data upload.
			return fmt.Errorf("unsupported tar entry type %q for %s", header.Typeflag, header.Name)
		}
	}
}

func extractZip(path string, destDir string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("read zip archive: %w", err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		target, err := secureJoin(destDir, entry.Name)
		if err != nil {
			return err
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		src, err := entry.Open()
		if err != nil {
			return err
		}
		err = writeFile(target, src)
		src.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// secureJoin resolves an archive entry name below dest, rejecting entries
// that would escape it.
func secureJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry escapes extraction dir: %s", name)
	}
	return target, nil
}

func writeFile(target string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	closeErr := dst.Close()
	if err != nil {
		return err
	}
	return closeErr
}
