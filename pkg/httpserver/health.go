package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kathanp/emailbot/pkg/logger"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

type healthBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Live always answers 200 while the process can serve HTTP.
func Live() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, http.StatusOK, healthBody{Status: "alive"})
	}
}

// Ready runs every check concurrently, each bounded by timeout, and answers
// 503 when any of them fails.
func Ready(log *slog.Logger, timeout time.Duration, checks map[string]Check) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		var (
			mu      sync.Mutex
			results = make(map[string]string, len(names))
			failed  bool
		)
		var g errgroup.Group
		for _, name := range names {
			check := checks[name]
			g.Go(func() error {
				err := check(ctx)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed = true
					results[name] = "fail"
					log.WarnContext(r.Context(), "readiness check failed",
						slog.String("check", name), logger.Error(err))
					return nil
				}
				results[name] = "ok"
				return nil
			})
		}
		_ = g.Wait()

		if failed {
			writeHealth(w, http.StatusServiceUnavailable, healthBody{Status: "not_ready", Checks: results})
			return
		}
		writeHealth(w, http.StatusOK, healthBody{Status: "ready", Checks: results})
	}
}

func writeHealth(w http.ResponseWriter, status int, body healthBody) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
