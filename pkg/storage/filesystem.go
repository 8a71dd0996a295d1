package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrOutsideRoot rejects names that would resolve outside the storage root.
var ErrOutsideRoot = errors.New("path escapes storage root")

// FileInfo describes a stored file. Name is slash-separated and relative to
// the root.
type FileInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// LocalStorage keeps files below a single root directory. Writes are atomic:
// readers never observe a partially written file.
type LocalStorage struct {
	root string
	now  func() time.Time
}

func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		root = "./backups"
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStorage{root: abs, now: time.Now}, nil
}

// Save writes data to name through a temp file in the same directory, then
// renames it into place.
func (s *LocalStorage) Save(name string, data []byte) (string, error) {
	target, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmp.Name(), 0o640); err != nil {
		return "", fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("rename into %s: %w", name, err)
	}
	committed = true
	return filepath.ToSlash(name), nil
}

// Open returns the stored file for reading. A missing file yields an error
// matching fs.ErrNotExist.
func (s *LocalStorage) Open(name string) (*os.File, error) {
	target, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// List returns the regular files directly under dir, newest first. A missing
// dir is an empty listing.
func (s *LocalStorage) List(dir string) ([]FileInfo, error) {
	target, err := s.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(target)
	if errors.Is(err, fs.ErrNotExist) {
		return []FileInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		files = append(files, FileInfo{
			Name:       joinSlash(dir, entry.Name()),
			Size:       info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		})
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].ModifiedAt.After(files[j].ModifiedAt) })
	return files, nil
}

// Prune removes files under dir older than maxAge, always sparing the keep
// newest ones. It returns the removed names.
func (s *LocalStorage) Prune(dir string, maxAge time.Duration, keep int) ([]string, error) {
	files, err := s.List(dir)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-maxAge)
	removed := []string{}
	for i, f := range files {
		if i < keep || f.ModifiedAt.After(cutoff) {
			continue
		}
		target, err := s.resolve(f.Name)
		if err != nil {
			return removed, err
		}
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", f.Name, err)
		}
		removed = append(removed, f.Name)
	}
	return removed, nil
}

func (s *LocalStorage) resolve(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%q: %w", name, ErrOutsideRoot)
	}
	target := filepath.Join(s.root, filepath.FromSlash(name))
	rel, err := filepath.Rel(s.root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", name, ErrOutsideRoot)
	}
	return target, nil
}

func joinSlash(dir, name string) string {
	return filepath.ToSlash(filepath.Join(filepath.FromSlash(dir), name))
}
