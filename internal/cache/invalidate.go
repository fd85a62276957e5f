package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ClearDir removes the directory and all contents. It recreates the directory
// afterwards to leave a valid empty cache location.
func ClearDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty dir")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// PurgeHTTPCacheByAge removes HTTP cache entries saved more than maxAge ago.
func PurgeHTTPCacheByAge(dir string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	removed := 0
	err := walkFiles(dir, func(path string, d fs.DirEntry) {
		if !strings.HasSuffix(d.Name(), ".meta.json") {
			return
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return
		}
		var e HTTPEntry
		if err := json.Unmarshal(b, &e); err != nil {
			return
		}
		if now.Sub(e.SavedAt) <= maxAge {
			return
		}
		removed++
		_ = os.Remove(path)
		_ = os.Remove(strings.TrimSuffix(path, ".meta.json") + ".body")
	})
	return removed, err
}

// PurgeResultCacheByAge removes cached answers not touched for maxAge.
func PurgeResultCacheByAge(dir string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	now := time.Now()
	removed := 0
	err := walkFiles(dir, func(path string, d fs.DirEntry) {
		if !isResultFile(d.Name()) {
			return
		}
		info, err := d.Info()
		if err != nil || now.Sub(info.ModTime()) <= maxAge {
			return
		}
		removed++
		_ = os.Remove(path)
	})
	return removed, err
}

// EnforceResultCacheLimits keeps at most maxCount cached answers in dir,
// removing the least recently used.
func EnforceResultCacheLimits(dir string, maxCount int) (int, error) {
	if maxCount <= 0 {
		return 0, nil
	}
	var files []lruFile
	err := walkFiles(dir, func(path string, d fs.DirEntry) {
		if !isResultFile(d.Name()) {
			return
		}
		if info, err := d.Info(); err == nil {
			files = append(files, lruFile{paths: []string{path}, mtime: info.ModTime(), size: info.Size()})
		}
	})
	if err != nil {
		return 0, err
	}
	return evict(files, 0, maxCount), nil
}

// EnforceHTTPCacheLimits evicts least recently used pages until the total
// body size is within maxBytes and the entry count within maxCount. Zero
// disables either bound.
func EnforceHTTPCacheLimits(dir string, maxBytes int64, maxCount int) (int, error) {
	if maxBytes <= 0 && maxCount <= 0 {
		return 0, nil
	}
	var files []lruFile
	err := walkFiles(dir, func(path string, d fs.DirEntry) {
		if !strings.HasSuffix(d.Name(), ".body") {
			return
		}
		info, err := d.Info()
		if err != nil {
			return
		}
		meta := strings.TrimSuffix(path, ".body") + ".meta.json"
		files = append(files, lruFile{paths: []string{path, meta}, mtime: info.ModTime(), size: info.Size()})
	})
	if err != nil {
		return 0, err
	}
	return evict(files, maxBytes, maxCount), nil
}

type lruFile struct {
	paths []string
	mtime time.Time
	size  int64
}

func evict(files []lruFile, maxBytes int64, maxCount int) int {
	sort.Slice(files, func(i, j int) bool { return files[i].mtime.Before(files[j].mtime) })
	var total int64
	for _, f := range files {
		total += f.size
	}
	count := len(files)
	removed := 0
	for _, f := range files {
		overCount := maxCount > 0 && count > maxCount
		overBytes := maxBytes > 0 && total > maxBytes
		if !overCount && !overBytes {
			break
		}
		for _, p := range f.paths {
			_ = os.Remove(p)
		}
		count--
		total -= f.size
		removed++
	}
	return removed
}

func isResultFile(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".meta.json")
}

func walkFiles(dir string, fn func(path string, d fs.DirEntry)) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			fn(path, d)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
