package handler

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"visitor-counter/pkg/errors"
	"visitor-counter/pkg/logger"
)

// Banner is served for unknown paths when no static frontend is present
const Banner = "Visitor Counter Service - API is running"

// StaticHandler serves the bundled frontend and doubles as the router's
// not-found handler. Unknown /api paths get the JSON not-found envelope.
type StaticHandler struct {
	dir    string
	logger *logger.Logger
}

// NewStaticHandler creates a static handler rooted at dir. An empty dir
// serves only the banner.
func NewStaticHandler(dir string, logger *logger.Logger) *StaticHandler {
	return &StaticHandler{dir: dir, logger: logger}
}

// ServeHTTP serves the requested file, then index.html, then the banner
func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
		NotFound(h.logger)(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		MethodNotAllowed(h.logger)(w, r)
		return
	}

	if h.dir != "" {
		clean := path.Clean("/" + r.URL.Path)
		if clean != "/" && h.serveFile(w, r, filepath.Join(h.dir, filepath.FromSlash(clean))) {
			return
		}
		if h.serveFile(w, r, filepath.Join(h.dir, "index.html")) {
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(Banner))
}

func (h *StaticHandler) serveFile(w http.ResponseWriter, r *http.Request, name string) bool {
	f, err := os.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return true
}

// NotFound returns the JSON not-found handler
func NotFound(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, errors.NewNotFoundError("Endpoint not found"), log)
	}
}

// MethodNotAllowed returns the JSON method-not-allowed handler
func MethodNotAllowed(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, errors.NewMethodNotAllowedError("Method not allowed for this endpoint"), log)
	}
}
