// Package pkgmgr discovers installed language analyzers.
package pkgmgr

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"symscope/internal/apperr"
)

// Manager looks analyzers up under a packages directory laid out as
// <packages>/<analyzer>/<version>/.
type Manager struct {
	packagesDir string
	// pathFallback allows an analyzer found on $PATH when none is installed.
	pathFallback bool
}

// Installation is one installed analyzer version.
type Installation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Dir     string `json:"dir"`
	Binary  string `json:"binary"`
	// Present reports whether Binary exists on disk.
	Present bool `json:"present"`
}

// metadata is the optional .metadata.json inside a version directory.
type metadata struct {
	// Binary is the entry point relative to the version directory.
	Binary string `json:"binary"`
}

// NewManager creates a manager rooted at packagesDir. An empty packagesDir
// uses PackagesDir().
func NewManager(packagesDir string, pathFallback bool) (*Manager, error) {
	if packagesDir == "" {
		dir, err := PackagesDir()
		if err != nil {
			return nil, err
		}
		packagesDir = dir
	}
	return &Manager{packagesDir: packagesDir, pathFallback: pathFallback}, nil
}

// PackagesDir returns the directory the manager searches.
func (m *Manager) PackagesDir() string {
	return m.packagesDir
}

// Locate returns the entry point of the newest installed version of name.
// Versions are ordered by directory name. binary is the default entry point
// file name and is looked up in the version directory and its bin/.
func (m *Manager) Locate(name, binary string) (*Installation, error) {
	versions, err := m.versions(name)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		if m.pathFallback {
			if path, err := exec.LookPath(BinaryName(binary)); err == nil {
				log.Debug().Str("analyzer", name).Str("binary", path).Msg("analyzer found on PATH")
				return &Installation{Name: name, Version: "PATH", Dir: filepath.Dir(path), Binary: path, Present: true}, nil
			}
		}
		return nil, fmt.Errorf("%w: no installation of %s under %s", apperr.ErrBackendNotFound, name, filepath.Join(m.packagesDir, name))
	}

	inst := m.installation(name, versions[len(versions)-1], binary)
	if !inst.Present {
		return nil, fmt.Errorf("%w: %s %s has no entry point at %s", apperr.ErrBinaryMissing, name, inst.Version, inst.Binary)
	}
	log.Debug().Str("analyzer", name).Str("version", inst.Version).Str("binary", inst.Binary).Msg("analyzer located")
	return inst, nil
}

// ListInstalled returns every installed version of every analyzer, sorted by
// name then version. binaries maps analyzer names to default entry points.
func (m *Manager) ListInstalled(binaries map[string]string) ([]Installation, error) {
	entries, err := os.ReadDir(m.packagesDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Installation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read packages directory: %w", err)
	}

	var out []Installation
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		versions, err := m.versions(entry.Name())
		if err != nil {
			log.Warn().Err(err).Str("analyzer", entry.Name()).Msg("skipping unreadable analyzer")
			continue
		}
		binary := binaries[entry.Name()]
		if binary == "" {
			binary = entry.Name()
		}
		for _, v := range versions {
			out = append(out, *m.installation(entry.Name(), v, binary))
		}
	}
	return out, nil
}

// versions lists the version directories of an analyzer in ascending order.
func (m *Manager) versions(name string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.packagesDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", apperr.ErrBackendNotFound, name, err)
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	sort.Strings(versions)
	return versions, nil
}

func (m *Manager) installation(name, version, binary string) *Installation {
	dir := filepath.Join(m.packagesDir, name, version)
	inst := &Installation{Name: name, Version: version, Dir: dir}

	candidates := []string{
		filepath.Join(dir, BinaryName(binary)),
		filepath.Join(dir, "bin", BinaryName(binary)),
	}
	if md, err := readMetadata(dir); err == nil && md.Binary != "" {
		candidates = []string{filepath.Join(dir, filepath.FromSlash(md.Binary))}
	}

	inst.Binary = candidates[0]
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			inst.Binary, inst.Present = c, true
			break
		}
	}
	return inst
}

func readMetadata(dir string) (*metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, ".metadata.json"))
	if err != nil {
		return nil, err
	}
	var md metadata
	if err := json.Unmarshal(data, &md); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("failed to parse analyzer metadata")
		return nil, err
	}
	return &md, nil
}
