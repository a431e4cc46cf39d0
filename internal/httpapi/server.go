package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/discovery"
	apimw "github.com/hamed0406/sitemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/sitemonitor/internal/metrics"
	"github.com/hamed0406/sitemonitor/internal/probe"
	"github.com/hamed0406/sitemonitor/internal/scheduler"
)

type Scraper interface {
	Scrape(ctx context.Context) (scheduler.Summary, error)
}

type Server struct {
	Logger   *zap.Logger
	Monitor  Scraper
	Checker  probe.Checker
	Exporter *metrics.Exporter
	BaseDir  string
	Excluded []string
}

func NewServer(l *zap.Logger, m Scraper, c probe.Checker, e *metrics.Exporter, baseDir string, excluded []string) *Server {
	return &Server{Logger: l, Monitor: m, Checker: c, Exporter: e, BaseDir: baseDir, Excluded: excluded}
}

// Router wires the public routes. keys guard /debug and /test; testRPM and
// testBurst rate-limit /test per client IP.
func (s *Server) Router(keys []string, testRPM, testBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(apimw.RequestLogger(s.Logger))
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", s.handleMetrics)

	r.Group(func(r chi.Router) {
		r.Use(apimw.RequireKey(keys))
		r.Get("/debug", s.handleDebug)
		r.With(apimw.RateLimit(testRPM, testBurst)).Get("/test/{domain}", s.handleTest)
	})

	return r
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Monitor.Scrape(r.Context())
	if err != nil {
		s.Logger.Error("metrics_scrape_error", zap.Error(err))
		http.Error(w, "Error collecting metrics", http.StatusInternalServerError)
		return
	}
	body, err := s.Exporter.Render()
	if err != nil {
		s.Logger.Error("metrics_render_error", zap.Error(err))
		http.Error(w, "Error collecting metrics", http.StatusInternalServerError)
		return
	}

	s.Logger.Info("metrics_served",
		zap.String("cycle", sum.CycleID),
		zap.Int("sites", sum.Total),
		zap.Int("down", len(sum.Down)),
		zap.Bool("shared", sum.Shared),
	)
	w.Header().Set("Content-Type", metrics.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Connection", "close")
	_, _ = w.Write(body)
}

type debugSite struct {
	Directory  string  `json:"directory"`
	Domain     string  `json:"domain"`
	Status     string  `json:"status"`
	Transport  string  `json:"transport"`
	HTTPStatus int     `json:"http_status,omitempty"`
	LatencyMS  float64 `json:"latency_ms"`
	Error      string  `json:"error,omitempty"`
}

type debugPayload struct {
	BaseDir      string      `json:"baseDir"`
	ExcludedDirs []string    `json:"excludedDirs"`
	TotalSites   int         `json:"totalSites"`
	Cycle        string      `json:"cycle"`
	CheckedAt    time.Time   `json:"checkedAt"`
	TableUpdated time.Time   `json:"tableUpdatedAt"`
	Sites        []debugSite `json:"sites"`
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Monitor.Scrape(r.Context())
	if err != nil {
		s.Logger.Error("debug_scrape_error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	sites := make([]debugSite, 0, len(sum.Results))
	for _, res := range sum.Results {
		sites = append(sites, debugSite{
			Directory:  res.SiteID,
			Domain:     res.Domain,
			Status:     string(res.Status()),
			Transport:  string(res.Transport),
			HTTPStatus: res.StatusCode,
			LatencyMS:  res.LatencyMS(),
			Error:      res.Error,
		})
	}
	excluded := s.Excluded
	if excluded == nil {
		excluded = []string{}
	}
	writeJSON(w, http.StatusOK, debugPayload{
		BaseDir:      s.BaseDir,
		ExcludedDirs: excluded,
		TotalSites:   sum.Total,
		Cycle:        sum.CycleID,
		CheckedAt:    sum.StartedAt,
		TableUpdated: s.Exporter.UpdatedAt(),
		Sites:        sites,
	})
}

type testPayload struct {
	Domain     string  `json:"domain"`
	Status     string  `json:"status"`
	Transport  string  `json:"transport"`
	HTTPStatus int     `json:"http_status,omitempty"`
	LatencyMS  float64 `json:"latency_ms"`
	Error      string  `json:"error,omitempty"`
	Timestamp  string  `json:"timestamp"`
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	d := discovery.NormalizeDomain(chi.URLParam(r, "domain"))
	res := s.Checker.Probe(r.Context(), d)

	s.Logger.Info("test_probe",
		zap.String("domain", d),
		zap.Bool("up", res.Up),
		zap.String("transport", string(res.Transport)),
		zap.Float64("latency_ms", res.LatencyMS()),
	)
	writeJSON(w, http.StatusOK, testPayload{
		Domain:     d,
		Status:     string(res.Status()),
		Transport:  string(res.Transport),
		HTTPStatus: res.StatusCode,
		LatencyMS:  res.LatencyMS(),
		Error:      res.Error,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
