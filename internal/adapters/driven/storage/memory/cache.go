// Package memory provides in-memory implementations of driven storage ports.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/scanqa/internal/core/domain"
	"github.com/custodia-labs/scanqa/internal/core/ports/driven"
)

// Ensure ArtifactCache implements the interface.
var _ driven.ArtifactCache = (*ArtifactCache)(nil)

type entry struct {
	payload   []byte
	createdAt time.Time
}

// ArtifactCache is an in-memory implementation of driven.ArtifactCache.
// Entries live for the lifetime of the process only.
type ArtifactCache struct {
	mu      sync.RWMutex
	entries map[domain.ArtifactKey]entry
}

// NewArtifactCache creates a new in-memory artifact cache.
func NewArtifactCache() *ArtifactCache {
	return &ArtifactCache{
		entries: make(map[domain.ArtifactKey]entry),
	}
}

// Get retrieves a copy of the payload stored under key.
func (c *ArtifactCache) Get(_ context.Context, key domain.ArtifactKey) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), e.payload...), nil
}

// Put stores a copy of the payload under key.
func (c *ArtifactCache) Put(_ context.Context, key domain.ArtifactKey, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{
		payload:   append([]byte(nil), payload...),
		createdAt: time.Now().UTC(),
	}
	return nil
}

// List returns the entries of one document ordered by stage.
func (c *ArtifactCache) List(_ context.Context, fp domain.Fingerprint) ([]domain.ArtifactInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var infos []domain.ArtifactInfo
	for key, e := range c.entries {
		if key.Fingerprint == fp {
			infos = append(infos, info(key, e))
		}
	}
	sortInfos(infos)
	return infos, nil
}

// ListAll returns every entry.
func (c *ArtifactCache) ListAll(_ context.Context) ([]domain.ArtifactInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	infos := make([]domain.ArtifactInfo, 0, len(c.entries))
	for key, e := range c.entries {
		infos = append(infos, info(key, e))
	}
	sortInfos(infos)
	return infos, nil
}

// Delete removes every entry of one document.
func (c *ArtifactCache) Delete(_ context.Context, fp domain.Fingerprint) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key := range c.entries {
		if key.Fingerprint == fp {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op.
func (c *ArtifactCache) Close() error {
	return nil
}

func info(key domain.ArtifactKey, e entry) domain.ArtifactInfo {
	return domain.ArtifactInfo{Key: key, Size: len(e.payload), CreatedAt: e.createdAt}
}

func stageOrder(s domain.Stage) int {
	for i, stage := range domain.AllStages() {
		if stage == s {
			return i
		}
	}
	return len(domain.AllStages())
}

func sortInfos(infos []domain.ArtifactInfo) {
	sort.Slice(infos, func(i, j int) bool {
		a, b := infos[i].Key, infos[j].Key
		if a.Fingerprint != b.Fingerprint {
			return a.Fingerprint < b.Fingerprint
		}
		if a.Stage != b.Stage {
			return stageOrder(a.Stage) < stageOrder(b.Stage)
		}
		return a.ConfigHash < b.ConfigHash
	})
}
