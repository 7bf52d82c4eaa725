package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"cabbot/internal/config"
	"cabbot/internal/metrics"
	"cabbot/internal/models"
	"cabbot/internal/store"

	"golang.org/x/time/rate"
)

// TrackerStat is one running ride poller as seen by operators.
type TrackerStat struct {
	TelegramID int64             `json:"telegram_id"`
	Role       models.Role       `json:"role"`
	RideID     string            `json:"ride_id"`
	Status     models.RideStatus `json:"status"`
	StartedAt  time.Time         `json:"started_at"`
}

// TrackerSource exposes the live tracker set. Implemented by the bot's
// tracker manager.
type TrackerSource interface {
	TrackerStats() []TrackerStat
}

// HTTPServer exposes a small ops API: health, live trackers, queue state.
type HTTPServer struct {
	cfg      config.APIConfig
	db       *store.DB
	trackers TrackerSource
	server   *http.Server
	auth     *HTTPAuth
}

func NewHTTPServer(cfg config.APIConfig, db *store.DB, trackers TrackerSource) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, db: db, trackers: trackers}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/api/v1/trackers", srv.handleTrackers)
	mux.HandleFunc("/api/v1/stats", srv.handleStats)
	mux.HandleFunc("/api/v1/reports/failed", srv.handleFailedReports)

	handler := loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// Handler returns the configured handler, used directly in tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	log.Printf("ops API listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("healthz")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleTrackers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("trackers")

	stats := []TrackerStat{}
	if s.trackers != nil {
		stats = s.trackers.TrackerStats()
	}
	writeJSON(w, http.StatusOK, map[string]any{"trackers": stats, "count": len(stats)})
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("stats")

	accounts, err := s.db.GetAllAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read accounts")
		return
	}

	failed, err := s.db.GetFailedReportTasks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read report queue")
		return
	}

	trackerCount := 0
	if s.trackers != nil {
		trackerCount = len(s.trackers.TrackerStats())
	}

	byRole := map[string]int{}
	for _, a := range accounts {
		byRole[string(a.Role)]++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accounts":         len(accounts),
		"accounts_by_role": byRole,
		"active_trackers":  trackerCount,
		"failed_reports":   len(failed),
	})
}

func (s *HTTPServer) handleFailedReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("reports_failed")

	failed, err := s.db.GetFailedReportTasks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read report queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": failed})
}

// HTTPAuth provides API-key auth and per-key rate limiting.
type HTTPAuth struct {
	cfg      config.APIConfig
	clients  map[string]config.APIClientKey
	limiters sync.Map // map[string]*rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if err == errPermissionDenied {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

var errPermissionDenied = fmt.Errorf("permission denied")

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKeyHeader := headerOrDefault(a.cfg.Auth.HeaderAPIKey, "x-api-key")
	extraHeader := headerOrDefault(a.cfg.Auth.HeaderExtra, "x-api-extra")

	apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader))
	extra := strings.TrimSpace(r.Header.Get(extraHeader))
	if apiKey == "" || extra == "" {
		return fmt.Errorf("missing api key headers")
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return fmt.Errorf("invalid api key")
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return fmt.Errorf("invalid extra header")
	}

	return a.checkPermissions(client, r)
}

func (a *HTTPAuth) checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermission(r)
	if required == "" {
		return nil
	}
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermission(r *http.Request) string {
	path := r.URL.Path
	switch {
	case path == "/api/v1/trackers":
		return "read:trackers"
	case path == "/api/v1/stats":
		return "read:stats"
	case strings.HasPrefix(path, "/api/v1/reports"):
		return "read:reports"
	}
	return ""
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	if !a.getLimiter(a.clientKey(r)).Allow() {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	apiKeyHeader := headerOrDefault(a.cfg.Auth.HeaderAPIKey, "x-api-key")
	if apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *HTTPAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}

func headerOrDefault(name, fallback string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return fallback
	}
	return name
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		log.Printf("http method=%s path=%s status=%d dur=%s", r.Method, r.URL.Path, recorder.status, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
