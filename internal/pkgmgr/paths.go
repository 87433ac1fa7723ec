package pkgmgr

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Home returns the root directory for analyzer installations.
// Priority: $SYMSCOPE_HOME -> $XDG_CACHE_HOME/symscope -> ~/.cache/symscope (Unix) / %LOCALAPPDATA%\symscope (Windows)
func Home() (string, error) {
	if home := os.Getenv("SYMSCOPE_HOME"); home != "" {
		return home, nil
	}

	if runtime.GOOS != "windows" {
		if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
			return filepath.Join(xdgCache, "symscope"), nil
		}
	}

	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(userHome, "AppData", "Local", "symscope"), nil
	default:
		return filepath.Join(userHome, ".cache", "symscope"), nil
	}
}

// PackagesDir returns the directory holding packages/<analyzer>/<version>/.
func PackagesDir() (string, error) {
	home, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "packages"), nil
}

// BinaryName adds the platform executable suffix.
func BinaryName(name string) string {
	if runtime.GOOS == "windows" && filepath.Ext(name) != ".exe" {
		return name + ".exe"
	}
	return name
}
