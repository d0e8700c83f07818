package routes

import (
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dobeutech/dobeunet/internal/config"
	"github.com/dobeutech/dobeunet/internal/services"
	"github.com/dobeutech/dobeunet/pkg/metrics"
	"github.com/dobeutech/dobeunet/web"
)

// Sessions is the websocket endpoint of the install bridge.
type Sessions interface {
	http.Handler
	Count() int
}

// Deps are the collaborators the router needs.
type Deps struct {
	Config    *config.Config
	Metrics   *metrics.Metrics
	Sessions  Sessions
	Publisher Publisher
	Validator *services.Validator
	Logger    *slog.Logger
	RateLimit RateLimitConfig
	Started   time.Time
	Now       func() time.Time
}

// NewRouter wires the site pages, the install bridge, the intake API and the
// health/metrics endpoints.
func NewRouter(d Deps) (http.Handler, error) {
	if d.Now == nil {
		d.Now = time.Now
	}
	index, err := web.IndexTemplate()
	if err != nil {
		return nil, err
	}
	static := web.Static()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger))
	r.Use(recoverer(d.Logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "site service healthy",
			"meta": map[string]interface{}{
				"uptime_seconds": int(time.Since(d.Started).Seconds()),
				"sessions":       d.Sessions.Count(),
				"timestamp":      d.Now().UTC(),
			},
		})
	})
	r.Handle("/metrics", d.Metrics.Handler())

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := index.Execute(w, d.Config); err != nil {
			d.Logger.Error("failed to render index", slog.Any("error", err))
		}
	})
	r.Get("/manifest.webmanifest", manifestHandler(d.Config))
	r.Get("/service-worker.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Service-Worker-Allowed", "/")
		serveAsset(w, r, static, "service-worker.js")
	})
	r.Get("/pwa-bridge.js", func(w http.ResponseWriter, r *http.Request) {
		serveAsset(w, r, static, "pwa-bridge.js")
	})
	r.Handle("/pwa/ws", d.Sessions)

	intake := &intakeAPI{
		publisher: d.Publisher,
		validator: d.Validator,
		metrics:   d.Metrics,
		logger:    d.Logger,
		now:       d.Now,
	}
	r.Route("/api", func(api chi.Router) {
		api.Use(rateLimit(d.RateLimit, d.Now))
		intake.routes(api)
	})

	return r, nil
}

type manifest struct {
	Name            string `json:"name"`
	ShortName       string `json:"short_name"`
	StartURL        string `json:"start_url"`
	Scope           string `json:"scope"`
	Display         string `json:"display"`
	ThemeColor      string `json:"theme_color"`
	BackgroundColor string `json:"background_color"`
}

func manifestHandler(cfg *config.Config) http.HandlerFunc {
	m := manifest{
		Name:            cfg.SiteName,
		ShortName:       cfg.SiteShortName,
		StartURL:        "/",
		Scope:           "/",
		Display:         "standalone",
		ThemeColor:      cfg.ThemeColor,
		BackgroundColor: "#ffffff",
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/manifest+json")
		_ = json.NewEncoder(w).Encode(m)
	}
}

func serveAsset(w http.ResponseWriter, r *http.Request, fsys fs.FS, name string) {
	body, err := fs.ReadFile(fsys, name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// recoverer turns a handler panic into a logged 500 instead of a dropped
// connection.
func recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("handler panic",
					slog.Any("panic", rec),
					slog.String("path", r.URL.Path),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("stack", string(debug.Stack())),
				)
				writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
					"success": false,
					"message": "Something went wrong",
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
