package server

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config contains server configuration options.
type Config struct {
	// APIPrefix is prepended to every API route, e.g. /api/v1/videoReview.
	APIPrefix string
	// StaticDir, when set, is served at /.
	StaticDir string
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// Metrics serves /metrics. Defaults to promhttp.Handler().
	Metrics http.Handler
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NormalizePrefix returns prefix with a leading slash and no trailing slash.
// An empty or "/" prefix yields "".
func NormalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return "/" + prefix
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()
	prefix := NormalizePrefix(cfg.APIPrefix)

	metricsHandler := cfg.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", metricsHandler)

	mux.HandleFunc("POST "+prefix+"/submit", h.Submit)
	mux.HandleFunc("GET "+prefix+"/showFiles", h.ShowFiles)
	mux.HandleFunc("GET "+prefix+"/download", h.Download)
	mux.HandleFunc("GET "+prefix+"/uploads", h.ListUploads)
	mux.HandleFunc("GET "+prefix+"/uploads/{id}", h.GetUpload)

	if cfg.StaticDir != "" {
		mux.Handle("GET /", staticHandler(cfg.StaticDir, http.HandlerFunc(h.NotFound)))
	}
	mux.HandleFunc("/", h.NotFound)

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}

// staticHandler serves files below dir and falls through to notFound for
// anything missing, so unknown paths keep the JSON 404 body.
func staticHandler(dir string, notFound http.Handler) http.Handler {
	root := os.DirFS(dir)
	files := http.FileServerFS(root)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = "."
		}
		info, err := fs.Stat(root, name)
		if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir() && !hasIndex(root, name)) {
			notFound.ServeHTTP(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func hasIndex(root fs.FS, dir string) bool {
	_, err := fs.Stat(root, path.Join(dir, "index.html"))
	return err == nil
}
