package cache

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

const opTimeout = 200 * time.Millisecond

// Fijos por tipo de dato.
const (
	TTLCart         = 300
	TTLOrders       = 300
	TTLProduct      = 600
	TTLProductList  = 600
	TTLEmptyListing = 60
)

func prefixOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

// GetOrLoad implementa la lectura cache-aside: en un hit devuelve el valor cacheado;
// en un miss llama a load, guarda el resultado con el TTL que indique ttlFor y lo devuelve.
// Los errores de la caché se registran y se tratan como miss.
func GetOrLoad[T any](ctx context.Context, c Cache, key string, ttlFor func(T) int, load func(ctx context.Context) (T, error), log *zap.Logger) (T, bool, error) {
	if c != nil {
		var cached T
		getCtx, cancel := context.WithTimeout(ctx, opTimeout)
		hit, err := c.Get(getCtx, key, &cached)
		cancel()
		switch {
		case err != nil:
			cacheRequests.WithLabelValues(prefixOf(key), "error").Inc()
			log.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		case hit:
			cacheRequests.WithLabelValues(prefixOf(key), "hit").Inc()
			return cached, true, nil
		default:
			cacheRequests.WithLabelValues(prefixOf(key), "miss").Inc()
		}
	}

	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}

	if c != nil {
		setCtx, cancel := context.WithTimeout(ctx, opTimeout)
		if err := c.Set(setCtx, key, value, ttlFor(value)); err != nil {
			log.Warn("Cache update failed", zap.String("key", key), zap.Error(err))
		}
		cancel()
	}
	return value, false, nil
}

// FixedTTL devuelve un ttlFor constante.
func FixedTTL[T any](secs int) func(T) int {
	return func(T) int { return secs }
}

// Invalidate borra las claves afectadas por una escritura ya confirmada.
// Un fallo se registra y no se propaga: la escritura sigue siendo válida.
func Invalidate(ctx context.Context, c Cache, log *zap.Logger, keys ...string) {
	if c == nil {
		return
	}
	for _, key := range keys {
		delCtx, cancel := context.WithTimeout(ctx, opTimeout)
		err := c.Delete(delCtx, key)
		cancel()
		if err != nil {
			cacheInvalidations.WithLabelValues(prefixOf(key), "error").Inc()
			log.Warn("Cache deletion failed", zap.String("key", key), zap.Error(err))
			continue
		}
		cacheInvalidations.WithLabelValues(prefixOf(key), "ok").Inc()
	}
}

// InvalidatePattern borra en bloque las claves de consultas (p.ej. "products:*").
func InvalidatePattern(ctx context.Context, c Cache, log *zap.Logger, pattern string) {
	if c == nil {
		return
	}
	delCtx, cancel := context.WithTimeout(ctx, 2*opTimeout)
	defer cancel()
	if err := c.DeleteByPattern(delCtx, pattern); err != nil {
		cacheInvalidations.WithLabelValues(prefixOf(pattern), "error").Inc()
		log.Warn("Cache pattern deletion failed", zap.String("pattern", pattern), zap.Error(err))
		return
	}
	cacheInvalidations.WithLabelValues(prefixOf(pattern), "ok").Inc()
}
