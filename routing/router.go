// Package routing provides the kernel.router service: a chi-backed HTTP
// router with Symfony-style named routes and URL generation.
package routing

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Route is the bookkeeping record behind a registered route, kept for URL
// generation and introspection.
type Route struct {
	Name    string
	Method  string
	Pattern string
}

// Router wraps chi.Router. Every route carries a name, mirroring Symfony's
// routing where names are the stable handle for URL generation:
//
//	// Symfony: $routes->add('user_show', '/users/{id}')
//	r.Get("user_show", "/users/{id}", showUser)
//	url, _ := r.Generate("user_show", map[string]string{"id": "42"})
type Router struct {
	mux    chi.Router
	routes map[string]Route
	prefix string
}

// New creates a Router with request-id, real-ip and panic-recovery middleware
// plus structured request logging through the given logger. A nil logger
// falls back to slog.Default.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	return &Router{mux: r, routes: make(map[string]Route)}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, req)
			logger.Info("request handled",
				"method", req.Method,
				"path", req.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"elapsed", time.Since(start))
		})
	}
}

// ── Registration ──────────────────────────────────────────────────────────────

// Add registers a named route for one HTTP method. A reused name replaces the
// previous bookkeeping entry, the way a redefined route does in Symfony.
func (r *Router) Add(name, method, pattern string, h http.HandlerFunc) {
	r.mux.Method(method, pattern, h)
	r.routes[name] = Route{Name: name, Method: method, Pattern: r.prefix + pattern}
}

func (r *Router) Get(name, pattern string, h http.HandlerFunc)    { r.Add(name, http.MethodGet, pattern, h) }
func (r *Router) Post(name, pattern string, h http.HandlerFunc)   { r.Add(name, http.MethodPost, pattern, h) }
func (r *Router) Put(name, pattern string, h http.HandlerFunc)    { r.Add(name, http.MethodPut, pattern, h) }
func (r *Router) Patch(name, pattern string, h http.HandlerFunc)  { r.Add(name, http.MethodPatch, pattern, h) }
func (r *Router) Delete(name, pattern string, h http.HandlerFunc) { r.Add(name, http.MethodDelete, pattern, h) }

// Any registers a handler for all common HTTP methods under one name.
func (r *Router) Any(name, pattern string, h http.HandlerFunc) {
	for _, m := range []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"} {
		r.mux.Method(m, pattern, h)
	}
	r.routes[name] = Route{Name: name, Method: "ANY", Pattern: r.prefix + pattern}
}

// Prefix mounts a group of routes under a URL prefix.
//
//	// Symfony: $routes->import(...)->prefix('/api/v1')
//	r.Prefix("/api/v1", func(api *routing.Router) {
//	    api.Get("api_users", "/users", listUsers)
//	})
func (r *Router) Prefix(prefix string, fn func(sub *Router)) {
	r.mux.Route(prefix, func(mx chi.Router) {
		fn(&Router{mux: mx, routes: r.routes, prefix: r.prefix + prefix})
	})
}

// Middleware appends middleware to the router. Must be called before any
// route is registered on this router, a chi constraint.
func (r *Router) Middleware(mw ...func(http.Handler) http.Handler) {
	r.mux.Use(mw...)
}

// Static serves a directory under a URL prefix.
func (r *Router) Static(prefix, dir string) {
	fs := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
	r.mux.Get(prefix+"/*", func(w http.ResponseWriter, req *http.Request) {
		fs.ServeHTTP(w, req)
	})
}

// ── URL generation ────────────────────────────────────────────────────────────

// Generate builds the URL for a named route, substituting {param} segments.
//
//	// Symfony: $urlGenerator->generate('user_show', ['id' => 42])
func (r *Router) Generate(name string, params map[string]string) (string, error) {
	route, ok := r.routes[name]
	if !ok {
		return "", fmt.Errorf("routing: no route named %s", strconv.Quote(name))
	}
	url := route.Pattern
	for key, value := range params {
		url = strings.ReplaceAll(url, "{"+key+"}", value)
	}
	if open := strings.IndexByte(url, '{'); open >= 0 {
		end := strings.IndexByte(url[open:], '}')
		missing := url[open:]
		if end >= 0 {
			missing = url[open : open+end+1]
		}
		return "", fmt.Errorf("routing: route %s: missing parameter %s", strconv.Quote(name), missing)
	}
	return url, nil
}

// HasRoute reports whether a named route exists.
func (r *Router) HasRoute(name string) bool {
	_, ok := r.routes[name]
	return ok
}

// Routes returns all registered routes, sorted by name.
func (r *Router) Routes() []Route {
	out := make([]Route, 0, len(r.routes))
	for _, route := range r.routes {
		out = append(out, route)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ── Request helpers ───────────────────────────────────────────────────────────

// Param extracts a URL parameter from a request.
//
//	// Symfony: $request->attributes->get('id')
func Param(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

// ── Serve ─────────────────────────────────────────────────────────────────────

// ServeHTTP implements http.Handler so a Router can be handed straight to
// http.ListenAndServe.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Handler returns the underlying http.Handler.
func (r *Router) Handler() http.Handler {
	return r.mux
}
