package api

import (
	"net/http"
	"time"

	"hookrelay/internal/buildinfo"
)

// DebugJSON exposes build and effective-config information for operators.
// Secrets never appear here; only presence flags.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"listen":         s.cfg.Listen,
			"workers":        s.cfg.Delivery.Workers,
			"timeoutSec":     s.cfg.Delivery.TimeoutSec,
			"maxRetries":     s.cfg.Delivery.MaxRetries,
			"retryBaseMs":    s.cfg.Delivery.RetryBaseMs,
			"rateLimit":      s.cfg.Delivery.RateLimit,
			"eventMaxAgeSec": s.cfg.Delivery.EventMaxAgeSec,
			"hasDatabaseUrl": s.cfg.DatabaseURL != "",
			"hasRedisUrl":    s.cfg.RedisURL != "",
		},
	})
}
