// Package utils holds small file-path helpers shared by the acquisition
// capabilities and the orchestrator.
package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Stem returns the file name without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Ext returns the file extension without the leading dot.
func Ext(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

// EnsureDir creates the directory for a file path, tolerating an existing
// one.
func EnsureDir(filePath string) error {
	return os.MkdirAll(filepath.Dir(filePath), 0o755)
}

// CopyFile copies src to dst, creating the destination directory first.
func CopyFile(src, dst string) error {
	if err := EnsureDir(dst); err != nil {
		return fmt.Errorf("creating destination dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying to %s: %w", dst, err)
	}
	return out.Close()
}

// MoveFile renames src to dst, falling back to copy-and-remove when the
// paths sit on different filesystems (staged browser downloads often do).
func MoveFile(src, dst string) error {
	if err := EnsureDir(dst); err != nil {
		return fmt.Errorf("creating destination dir: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := CopyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
