package httpserver

import (
	"net/http"

	"sessionexport/backend/services/report-service/internal/http/handlers"
	"sessionexport/backend/services/report-service/internal/http/middleware"
)

// RouterDeps collects handler dependencies. Nil optional handlers leave their routes out.
type RouterDeps struct {
	ReportHandlers      *handlers.ReportHandlers
	ExportsHandlers     *handlers.ExportsHandlers
	ProgressHandler     *handlers.ProgressHandler
	HealthHandler       http.HandlerFunc
	AuthMiddleware      func(http.Handler) http.Handler
	RateLimitMiddleware func(http.Handler) http.Handler
}

// NewRouter wires HTTP routes with middleware.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", method(http.MethodGet, deps.HealthHandler))
	mux.Handle("/api/report/defaults", method(http.MethodGet, http.HandlerFunc(deps.ReportHandlers.Defaults)))

	authenticated := func(handler http.Handler, extra ...func(http.Handler) http.Handler) http.Handler {
		chain := make([]func(http.Handler) http.Handler, 0, len(extra)+1)
		if deps.AuthMiddleware != nil {
			chain = append(chain, deps.AuthMiddleware)
		}
		for _, mw := range extra {
			if mw != nil {
				chain = append(chain, mw)
			}
		}
		return middleware.Chain(handler, chain...)
	}

	download := method(http.MethodPost, authenticated(http.HandlerFunc(deps.ReportHandlers.Download), deps.RateLimitMiddleware))
	mux.Handle("/sessions/report", download)
	mux.Handle("/api/sessions/download", download)

	if deps.ExportsHandlers != nil {
		mux.Handle("/api/exports", method(http.MethodGet, authenticated(http.HandlerFunc(deps.ExportsHandlers.List))))
	}
	if deps.ProgressHandler != nil {
		mux.Handle("/api/exports/progress", method(http.MethodGet, authenticated(http.HandlerFunc(deps.ProgressHandler.Stream))))
	}

	return mux
}

func method(expected string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
