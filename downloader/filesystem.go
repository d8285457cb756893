package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Caches downloaded documents on disk, one file per URL. Lets
// separate CLI invocations share delay lookups.
type Filesystem struct {
	Dir     string
	Logger  *zap.Logger
	TimeNow func() time.Time

	mutex sync.Mutex
}

// Written as JSON. Body is base64 encoded by encoding/json.
type fsEntry struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	Body      []byte    `json:"body"`
}

// Creates the cache directory if needed.
func NewFilesystem(dir string, logger *zap.Logger) (*Filesystem, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	return &Filesystem{
		Dir:     dir,
		Logger:  logger,
		TimeNow: time.Now,
	}, nil
}

func (f *Filesystem) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	path := f.entryPath(url)

	if options.Cache {
		entry, err := f.read(path)
		switch {
		case err != nil:
			f.Logger.Warn("reading cache entry", zap.String("url", url), zap.Error(err))
		case entry != nil && entry.URL == url && entry.ExpiresAt.After(f.TimeNow()):
			f.Logger.Debug("cache hit", zap.String("url", url))
			return entry.Body, nil
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if options.Cache {
		err = f.write(path, &fsEntry{
			URL:       url,
			ExpiresAt: f.TimeNow().Add(options.CacheTTL).UTC(),
			Body:      body,
		})
		if err != nil {
			return nil, fmt.Errorf("caching %s: %w", url, err)
		}
	}

	return body, nil
}

// Removes expired entries. Returns how many were removed.
func (f *Filesystem) Prune() (int, error) {
	files, err := filepath.Glob(filepath.Join(f.Dir, "*.json"))
	if err != nil {
		return 0, err
	}

	now := f.TimeNow()
	removed := 0
	for _, path := range files {
		entry, err := f.read(path)
		if err != nil || entry == nil || !entry.ExpiresAt.After(now) {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return removed, fmt.Errorf("removing %s: %w", path, err)
			}
			removed++
		}
	}

	f.Logger.Debug("pruned cache", zap.Int("removed", removed))
	return removed, nil
}

func (f *Filesystem) entryPath(url string) string {
	return filepath.Join(f.Dir, cacheKey(url)+".json")
}

// Returns nil and no error if there is no entry.
func (f *Filesystem) read(path string) (*fsEntry, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	buf, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entry := &fsEntry{}
	if err := json.Unmarshal(buf, entry); err != nil {
		return nil, fmt.Errorf("unmarshaling %s: %w", filepath.Base(path), err)
	}
	return entry, nil
}

// Writes through a temp file so readers never see partial entries.
func (f *Filesystem) write(path string, entry *fsEntry) error {
	buf, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling: %w", err)
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0644); err != nil {
		return fmt.Errorf("writing: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming: %w", err)
	}
	return nil
}
