package util

import (
	"os"
	"path/filepath"
)

// rootMarkers identify the top of a workspace, nearest first.
var rootMarkers = []string{".git", "go.mod", "*.csproj", "*.sln", "package.json", "pyproject.toml"}

// FindProjectRoot walks up from start to the nearest directory holding a
// workspace marker. start may be a file. When nothing is found the directory
// of start is returned.
func FindProjectRoot(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		abs = filepath.Dir(abs)
	}

	for dir := abs; ; {
		for _, marker := range rootMarkers {
			if matches, _ := filepath.Glob(filepath.Join(dir, marker)); len(matches) > 0 {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}
