// Package fsutil holds small filesystem helpers shared by the session store and
// the generation fingerprint service.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// WriteFileAtomic writes content to a temp file next to path and renames it
// into place, so readers see either the old or the new content.
func WriteFileAtomic(path string, content []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)
	base := filepath.Base(path)

	tempFile, err := os.CreateTemp(parent, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(content); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Chmod(mode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := ReplaceFile(tempPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

// ReplaceFile renames src over dst and syncs the parent directory.
func ReplaceFile(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		if runtime.GOOS != "windows" {
			return fmt.Errorf("rename %s: %w", filepath.Base(src), err)
		}
		if removeErr := os.Remove(dst); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("remove destination before rename: %w", removeErr)
		}
		if renameErr := os.Rename(src, dst); renameErr != nil {
			return fmt.Errorf("rename after remove: %w", renameErr)
		}
	}

	// #nosec G304 -- parent directory of a caller-resolved destination.
	if dirHandle, err := os.Open(filepath.Dir(dst)); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}
	return nil
}

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
