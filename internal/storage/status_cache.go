package storage

import (
	"sort"
	"sync"

	"activator/internal/models"
)

// StatusCache holds the latest status per target. Writes to a key replace the
// previous value atomically; the last completed write wins.
type StatusCache struct {
	entries sync.Map // models.TargetKey -> models.Status
}

// NewStatusCache returns an empty cache.
func NewStatusCache() *StatusCache {
	return &StatusCache{}
}

// Get returns the cached status for key, if any.
func (c *StatusCache) Get(key models.TargetKey) (models.Status, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return "", false
	}
	return v.(models.Status), true
}

// Set records status for key.
func (c *StatusCache) Set(key models.TargetKey, status models.Status) {
	c.entries.Store(key, status)
}

// Snapshot returns a copy of every current key/status pair.
func (c *StatusCache) Snapshot() map[models.TargetKey]models.Status {
	out := make(map[models.TargetKey]models.Status)
	c.entries.Range(func(k, v any) bool {
		out[k.(models.TargetKey)] = v.(models.Status)
		return true
	})
	return out
}

// KeysWithStatus returns the sorted keys currently holding status.
func (c *StatusCache) KeysWithStatus(status models.Status) []models.TargetKey {
	var keys []models.TargetKey
	c.entries.Range(func(k, v any) bool {
		if v.(models.Status) == status {
			keys = append(keys, k.(models.TargetKey))
		}
		return true
	})
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
