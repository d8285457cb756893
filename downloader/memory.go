package downloader

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Caches downloaded documents in memory.
type Memory struct {
	TimeNow func() time.Time
	Logger  *zap.Logger

	mutex sync.Mutex
	cache map[string]memoryEntry
}

type memoryEntry struct {
	data       []byte
	expiration time.Time
}

func NewMemory() *Memory {
	return &Memory{
		TimeNow: time.Now,
		Logger:  zap.NewNop(),
		cache:   map[string]memoryEntry{},
	}
}

func (d *Memory) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if options.Cache {
		d.mutex.Lock()
		entry, ok := d.cache[url]
		d.mutex.Unlock()

		if ok && entry.expiration.After(d.TimeNow()) {
			d.Logger.Debug("cache hit", zap.String("url", url))
			return entry.data, nil
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if options.Cache {
		d.mutex.Lock()
		d.cache[url] = memoryEntry{
			data:       body,
			expiration: d.TimeNow().Add(options.CacheTTL),
		}
		d.mutex.Unlock()
	}

	return body, nil
}

// Drops every cached document.
func (d *Memory) Purge() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.cache = map[string]memoryEntry{}
}
