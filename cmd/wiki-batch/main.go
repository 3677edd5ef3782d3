// wiki-batch exposes the batch query engine over HTTP: callers submit title
// lists and get merged results back, while the service handles chunking,
// continuation, caching, and server pressure.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wikibatch/mediawiki-query-client/pkg/client"
	"github.com/wikibatch/mediawiki-query-client/pkg/logging"
	"github.com/wikibatch/mediawiki-query-client/pkg/query"
)

func main() {
	// Configuration from environment
	apiURL := getEnv("WIKI_API_URL", "https://en.wikipedia.org/w/api.php")
	redisURL := getEnv("REDIS_URL", "")
	port := getEnv("PORT", "8080")
	userAgent := getEnv("USER_AGENT", "wiki-batch/0.1.0 (https://github.com/wikibatch/mediawiki-query-client)")
	titleLimit := getEnvInt("TITLE_LIMIT", 50)

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logging.Setup(logCfg)

	cfg := client.DefaultConfig(apiURL, userAgent)
	cfg.TitleLimit = titleLimit

	// Redis is optional; without it the service runs uncached.
	if redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", redisURL, err)
		}
		cancel()
		cfg.Redis = redisClient
		log.Printf("Connected to Redis at %s", redisURL)
	}

	wikiClient, err := client.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create API client: %v", err)
	}
	defer wikiClient.Close()

	opts := query.DefaultOptions()
	opts.ChunkSize = wikiClient.TitleLimit()
	actions := query.NewActions(wikiClient, opts)

	// HTTP server
	http.HandleFunc("/health", healthHandler)
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/batch/categories", batchHandler(actions.CategoriesOnPage))
	http.HandleFunc("/batch/links", batchHandler(actions.LinksOnPage))
	http.HandleFunc("/batch/templates", batchHandler(actions.TemplatesOnPage))
	http.HandleFunc("/batch/exists", existsHandler(actions))
	http.HandleFunc("/stream/members", membersHandler(actions))

	addr := ":" + port
	log.Printf("Starting wiki-batch server on %s", addr)
	log.Printf("API endpoint: %s", apiURL)
	log.Printf("Title limit: %d", titleLimit)

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// batchHandler serves a pipe-fenced title list through one of the batch
// query methods. Example: /batch/categories?titles=Go|Rust
func batchHandler(fn func(context.Context, []string) (map[string][]string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		titles := splitTitles(r.URL.Query().Get("titles"))
		if len(titles) == 0 {
			http.Error(w, "missing titles parameter", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
		defer cancel()

		out, err := fn(ctx, titles)
		if err != nil {
			http.Error(w, fmt.Sprintf("batch query failed: %v", err), http.StatusBadGateway)
			return
		}
		writeJSON(w, out)
	}
}

func existsHandler(actions *query.Actions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		titles := splitTitles(r.URL.Query().Get("titles"))
		if len(titles) == 0 {
			http.Error(w, "missing titles parameter", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
		defer cancel()

		out, err := actions.Exists(ctx, titles)
		if err != nil {
			http.Error(w, fmt.Sprintf("batch query failed: %v", err), http.StatusBadGateway)
			return
		}
		writeJSON(w, out)
	}
}

// membersHandler streams category members up to a caller-supplied cap.
// Example: /stream/members?category=Category:Physics&max=200
func membersHandler(actions *query.Actions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := r.URL.Query().Get("category")
		if category == "" {
			http.Error(w, "missing category parameter", http.StatusBadRequest)
			return
		}
		max := 500
		if v := r.URL.Query().Get("max"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				http.Error(w, "max must be a positive integer", http.StatusBadRequest)
				return
			}
			max = n
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
		defer cancel()

		s := actions.CategoryMembers(category, "")
		defer s.Close()

		var titles []string
		for len(titles) < max && s.Next(ctx) {
			titles = append(titles, s.Unit().Item.Title)
		}
		if err := s.Err(); err != nil {
			http.Error(w, fmt.Sprintf("stream failed: %v", err), http.StatusBadGateway)
			return
		}
		writeJSON(w, titles)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func splitTitles(raw string) []string {
	if raw == "" {
		return nil
	}
	var titles []string
	for _, t := range strings.Split(raw, "|") {
		if t = strings.TrimSpace(t); t != "" {
			titles = append(titles, t)
		}
	}
	return titles
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
