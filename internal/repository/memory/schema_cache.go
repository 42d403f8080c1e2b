package memory

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// SchemaCache keeps formatted schema text per workspace so repeated turns
// against the same workspace skip re-formatting the snapshot. Entries are
// invalidated on schema refresh.
type SchemaCache struct {
	cache *cache.Cache
}

func NewSchemaCache() *SchemaCache {
	// Default expiration of 1 hour, purging expired items every 10 minutes
	c := cache.New(1*time.Hour, 10*time.Minute)
	return &SchemaCache{
		cache: c,
	}
}

func (r *SchemaCache) Save(workspaceId uuid.UUID, formatted string) {
	r.cache.Set(workspaceId.String(), formatted, cache.DefaultExpiration)
}

func (r *SchemaCache) Get(workspaceId uuid.UUID) (string, bool) {
	if x, found := r.cache.Get(workspaceId.String()); found {
		return x.(string), true
	}
	return "", false
}

func (r *SchemaCache) Invalidate(workspaceId uuid.UUID) {
	r.cache.Delete(workspaceId.String())
}
