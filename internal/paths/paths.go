// Package paths resolves model file names inside per-kind folders.
package paths

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Hypernetworks is the folder kind holding hypernetwork checkpoints.
const Hypernetworks = "hypernetworks"

// ErrNotFound is returned when a name does not resolve to a file.
var ErrNotFound = errors.New("file not found")

// Extensions lists the checkpoint extensions recognized by List.
var Extensions = []string{".pt", ".pth", ".ckpt", ".safetensors", ".bin"}

// Folders maps a folder kind to its base directories.
type Folders struct {
	dirs map[string][]string
}

// New creates Folders with one directory per kind under home.
func New(home string) *Folders {
	f := &Folders{dirs: make(map[string][]string)}
	f.Add(Hypernetworks, filepath.Join(home, Hypernetworks))
	return f
}

// Add registers an extra base directory for kind. Earlier directories win
// when a name exists in several.
func (f *Folders) Add(kind, dir string) {
	f.dirs[kind] = append(f.dirs[kind], dir)
}

// Dirs returns the base directories registered for kind.
func (f *Folders) Dirs(kind string) []string {
	return append([]string(nil), f.dirs[kind]...)
}

// List returns the slash-separated names of checkpoint files below the
// directories of kind, sorted and without duplicates. Missing directories
// are skipped.
func (f *Folders) List(kind string) ([]string, error) {
	seen := make(map[string]bool)
	var names []string

	for _, dir := range f.dirs[kind] {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && path == dir {
					return filepath.SkipDir
				}
				return err
			}
			if d.IsDir() || !recognized(path) {
				return nil
			}

			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			name := filepath.ToSlash(rel)
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", dir, err)
		}
	}

	sort.Strings(names)
	return names, nil
}

// FullPath resolves name to a file in one of kind's directories.
// Names that leave the base directory are rejected.
func (f *Folders) FullPath(kind, name string) (string, error) {
	dirs, ok := f.dirs[kind]
	if !ok {
		return "", fmt.Errorf("unknown folder kind %q", kind)
	}

	rel := filepath.Clean(filepath.FromSlash(name))
	if name == "" || filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid %s name %q", kind, name)
	}

	for _, dir := range dirs {
		path := filepath.Join(dir, rel)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s %q", ErrNotFound, kind, name)
}

func recognized(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
