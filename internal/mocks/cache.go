package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	sharedCache "github.com/davicafu/hexashop/internal/shared/infra/platform/cache"
)

var ErrCacheDown = errors.New("cache unavailable")

// DummyCache es un mock de caché en memoria, genérico y seguro para concurrencia.
// No caduca entradas: los tests de TTL usan cache.InMemoryCache con reloj falso.
type DummyCache struct {
	store map[string][]byte
	ttls  map[string]int
	mu    sync.RWMutex

	// FailDeletes simula una caché caída en las invalidaciones.
	FailDeletes bool
}

// Verificación estática para asegurar que implementa la interfaz compartida.
var _ sharedCache.Cache = (*DummyCache)(nil)

func NewDummyCache() *DummyCache {
	return &DummyCache{
		store: make(map[string][]byte),
		ttls:  make(map[string]int),
	}
}

func (c *DummyCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, ok := c.store[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *DummyCache) Set(ctx context.Context, key string, val interface{}, ttlSecs int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.store[key] = data
	c.ttls[key] = ttlSecs
	return nil
}

func (c *DummyCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailDeletes {
		return ErrCacheDown
	}
	delete(c.store, key)
	delete(c.ttls, key)
	return nil
}

func (c *DummyCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailDeletes {
		return ErrCacheDown
	}
	for key := range c.store {
		if sharedCache.MatchPattern(pattern, key) {
			delete(c.store, key)
			delete(c.ttls, key)
		}
	}
	return nil
}

// Has indica si la clave está en caché.
func (c *DummyCache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.store[key]
	return ok
}

// TTL devuelve el TTL con el que se guardó la clave (0 si no existe).
func (c *DummyCache) TTL(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ttls[key]
}
