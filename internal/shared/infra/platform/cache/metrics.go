package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "hexashop_cache_requests_total",
	Help: "Cache-aside lookups by key prefix and result (hit, miss, error)",
}, []string{"prefix", "result"})

var cacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "hexashop_cache_invalidations_total",
	Help: "Cache invalidations by key prefix and result (ok, error)",
}, []string{"prefix", "result"})
