package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ResultCache stores finished answers keyed by a config fingerprint and the
// normalized query. At most MaxEntries files are kept; the least recently
// used are evicted first.
type ResultCache struct {
	Dir         string
	StrictPerms bool
	// MaxEntries caps the number of cached answers. Zero means unlimited.
	MaxEntries int
}

// KeyFrom builds a cache key from a config fingerprint and a query. The
// query is NFC-normalized and trimmed so visually identical queries share
// an entry.
func KeyFrom(fingerprint string, query string) string {
	q := strings.TrimSpace(norm.NFC.String(query))
	h := sha256.Sum256([]byte(fingerprint + "\n\n" + q))
	return hex.EncodeToString(h[:])
}

func (c *ResultCache) ensureDir() error {
	if c == nil || c.Dir == "" {
		return errors.New("cache dir not configured")
	}
	return ensureDir(c.Dir, c.StrictPerms)
}

func (c *ResultCache) pathFor(key string) string {
	return filepath.Join(c.Dir, key+".json")
}

// Get returns cached bytes if present.
func (c *ResultCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := c.ensureDir(); err != nil {
		return nil, false, err
	}
	p := c.pathFor(key)
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, false, nil
	}
	now := time.Now()
	_ = os.Chtimes(p, now, now)
	return b, true, nil
}

// Save writes bytes to cache and enforces MaxEntries.
func (c *ResultCache) Save(_ context.Context, key string, data []byte) error {
	if err := c.ensureDir(); err != nil {
		return err
	}
	if err := os.WriteFile(c.pathFor(key), data, fileMode(c.StrictPerms)); err != nil {
		return err
	}
	if c.MaxEntries > 0 {
		if _, err := EnforceResultCacheLimits(c.Dir, c.MaxEntries); err != nil {
			return err
		}
	}
	return nil
}
