package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"innsync/internal/config"
	"innsync/internal/models"
	"innsync/internal/query"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// SyncRunner is the worker surface exposed to ops tooling. Every run is
// idempotent and safe to invoke out of schedule.
type SyncRunner interface {
	RunBlockSync(ctx context.Context) error
	RunPackageBlockSync(ctx context.Context) error
	RunReservationRevalidation(ctx context.Context) error
	RunRefreshKeyHousekeeping(ctx context.Context) error
}

// Reporter builds the sync status report and returns the written file path.
type Reporter interface {
	BuildSyncReport(ctx context.Context) (string, error)
}

// HTTPServer exposes the ops entry points and the read-only search API.
type HTTPServer struct {
	cfg      config.OpsConfig
	runner   SyncRunner
	search   *query.AvailabilityQueryEngine
	packages *query.PackageQueryEngine
	reporter Reporter
	server   *http.Server
	auth     *httpAuth
	logger   zerolog.Logger
}

func NewHTTPServer(
	cfg config.OpsConfig,
	runner SyncRunner,
	search *query.AvailabilityQueryEngine,
	packages *query.PackageQueryEngine,
	reporter Reporter,
	logger *zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		runner:   runner,
		search:   search,
		packages: packages,
		reporter: reporter,
		auth:     newHTTPAuth(cfg),
		logger:   logger.With().Str("component", "ops_api").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ops/sync/availability", srv.syncHandler(runner.RunBlockSync))
	mux.HandleFunc("/ops/sync/packages", srv.syncHandler(runner.RunPackageBlockSync))
	mux.HandleFunc("/ops/sync/reservations", srv.syncHandler(runner.RunReservationRevalidation))
	mux.HandleFunc("/ops/sync/housekeeping", srv.syncHandler(runner.RunRefreshKeyHousekeeping))
	mux.HandleFunc("/ops/report", srv.handleReport)
	mux.HandleFunc("/api/v1/search", srv.handleSearch)
	mux.HandleFunc("/api/v1/packages/search", srv.handlePackageSearch)
	mux.HandleFunc("/healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

// Handler returns the full middleware chain, exposed for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("ops API listening")
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

func (s *HTTPServer) syncHandler(run func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := run(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
	}
}

func (s *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.reporter == nil {
		writeError(w, http.StatusNotImplemented, "reporting is not configured")
		return
	}
	path, err := s.reporter.BuildSyncReport(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed", "path": path})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	criteria, err := criteriaFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := s.search.Search(r.Context(), criteria)
	if err != nil {
		writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handlePackageSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	criteria, err := criteriaFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := s.packages.Search(r.Context(), criteria)
	if err != nil {
		writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, query.ErrUnknownDestination):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, query.ErrDuplicateDestination):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func criteriaFromQuery(r *http.Request) (query.Criteria, error) {
	q := r.URL.Query()

	destinationID, err := strconv.ParseInt(strings.TrimSpace(q.Get("destination_id")), 10, 64)
	if err != nil {
		return query.Criteria{}, fmt.Errorf("destination_id is required")
	}

	checkIn, err := time.Parse(models.DateFormat, strings.TrimSpace(q.Get("check_in")))
	if err != nil {
		return query.Criteria{}, fmt.Errorf("invalid check_in; expected YYYY-MM-DD")
	}
	checkOut, err := time.Parse(models.DateFormat, strings.TrimSpace(q.Get("check_out")))
	if err != nil {
		return query.Criteria{}, fmt.Errorf("invalid check_out; expected YYYY-MM-DD")
	}

	criteria := query.Criteria{
		DestinationID: destinationID,
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		SortDesc:      strings.EqualFold(q.Get("sort"), "desc"),
	}

	if raw := strings.TrimSpace(q.Get("adults")); raw != "" {
		criteria.Adults, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return query.Criteria{}, fmt.Errorf("invalid adults")
		}
	}
	if raw := strings.TrimSpace(q.Get("min_price")); raw != "" {
		criteria.MinPrice, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return query.Criteria{}, fmt.Errorf("invalid min_price")
		}
	}
	if raw := strings.TrimSpace(q.Get("max_price")); raw != "" {
		criteria.MaxPrice, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return query.Criteria{}, fmt.Errorf("invalid max_price")
		}
	}
	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		criteria.Page, err = strconv.Atoi(raw)
		if err != nil {
			return query.Criteria{}, fmt.Errorf("invalid page")
		}
	}
	if raw := strings.TrimSpace(q.Get("page_size")); raw != "" {
		criteria.PageSize, err = strconv.Atoi(raw)
		if err != nil {
			return query.Criteria{}, fmt.Errorf("invalid page_size")
		}
	}
	return criteria, nil
}

// httpAuth provides API-key auth and per-key rate limiting.
type httpAuth struct {
	cfg      config.OpsConfig
	clients  map[string]config.OpsClientKey
	limiters sync.Map // map[string]*rate.Limiter
}

func newHTTPAuth(cfg config.OpsConfig) *httpAuth {
	m := make(map[string]config.OpsClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &httpAuth{cfg: cfg, clients: m}
}

func (a *httpAuth) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
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

func (a *httpAuth) headerName() string {
	header := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if header == "" {
		header = "x-api-key"
	}
	return header
}

func (a *httpAuth) checkAuth(r *http.Request) error {
	apiKey := strings.TrimSpace(r.Header.Get(a.headerName()))
	if apiKey == "" {
		return fmt.Errorf("missing api key header")
	}

	// Constant-time scan over configured keys; the map is only used to carry
	// client names once a key matches.
	for key := range a.clients {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			return nil
		}
	}
	return fmt.Errorf("invalid api key")
}

func (a *httpAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	lim := a.getLimiter(a.clientKey(r))
	if !lim.Allow() {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

func (a *httpAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.headerName())); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *httpAuth) getLimiter(key string) *rate.Limiter {
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

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
