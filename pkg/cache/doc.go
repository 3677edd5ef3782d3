// Package cache provides Redis-backed caching of MediaWiki query responses.
//
// The Action API does not emit useful cache-validation headers for api.php
// requests, so entries are cached for a fixed, caller-configured TTL keyed by
// the full, canonicalized parameter set of the request. Only read queries are
// cached; the query engine decides per operation whether a response may be
// served from cache.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Params: url.Values{
//			"action": []string{"query"},
//			"list":   []string{"categorymembers"},
//		},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from the API
//	}
//
// # Metrics
//
// The cache manager exports Prometheus metrics:
//
//   - mwq_cache_hits_total{layer="redis"} - Cache hits
//   - mwq_cache_misses_total - Cache misses
//   - mwq_cache_size_bytes{layer="redis"} - Cache size
//   - mwq_cache_errors_total{operation} - Cache operation errors
package cache
