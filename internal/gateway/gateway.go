// Package gateway é a borda HTTP: encaminha /api/mirror ao mirror-service e
// /api/chain ao simulador, com CORS.
package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Route liga um prefixo público a um serviço interno
type Route struct {
	Prefix string
	Target string
}

// New monta o roteador. O prefixo é removido antes do encaminhamento.
func New(routes []Route, origins []string, log *zap.Logger) (http.Handler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(withCORS(origins))

	for _, rt := range routes {
		u, err := url.Parse(rt.Target)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("route %s: invalid target %q", rt.Prefix, rt.Target)
		}
		prefix := "/" + strings.Trim(rt.Prefix, "/")
		p := httputil.NewSingleHostReverseProxy(u)
		p.ErrorHandler = func(w http.ResponseWriter, req *http.Request, err error) {
			log.Warn("upstream failed", zap.String("prefix", prefix), zap.String("path", req.URL.Path), zap.Error(err))
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}
		r.Mount(prefix, http.StripPrefix(prefix, p))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return r, nil
}

func withCORS(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimSpace(o)] = true
	}
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowed["*"]:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}
