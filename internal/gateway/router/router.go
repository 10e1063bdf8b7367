// Package router wires the gateway routes and applies the middleware chain.
package router

import (
	"log/slog"
	"net/http"

	gwhandler "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/gateway/handler"
	gwmw "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/middleware"
)

// Config carries what the router needs besides the handler.
type Config struct {
	Token   string
	Health  *health.Checker
	Metrics *metrics.Metrics
	CORS    gwmw.CORSConfig
	Logger  *slog.Logger
}

// New builds the gateway HTTP handler.
//
// Route table (both path spellings are served):
//
//	POST /hackrx/run, /hackerx/run                → run pipeline        (auth)
//	GET  /hackrx/run/health, /hackerx/run/health  → run endpoint health
//	POST /hackerx/upload, /hackrx/upload          → upload to S3        (auth)
//	GET  /hackerx/uploads                         → list uploads        (auth)
//	GET  /health/live, /health/ready              → liveness, readiness
//
// Middleware chain (outermost first):
//
//	RequestID → Recover → Logging → Metrics → CORS → mux → Auth (per route)
//
// Auth wraps individual routes so that Metrics sees the mux's matched
// pattern on the request.
func New(h *gwhandler.Handler, cfg Config) http.Handler {
	mux := http.NewServeMux()
	auth := gwmw.Auth(cfg.Token, cfg.Logger)
	protect := func(fn http.HandlerFunc) http.Handler { return auth(fn) }

	for _, prefix := range []string{"/hackrx", "/hackerx"} {
		mux.Handle("POST "+prefix+"/run", protect(h.Run))
		mux.HandleFunc("GET "+prefix+"/run/health", h.RunHealth)
		mux.Handle("POST "+prefix+"/upload", protect(h.Upload))
	}
	mux.Handle("GET /hackerx/uploads", protect(h.ListUploads))

	if cfg.Health != nil {
		mux.HandleFunc("GET /health/live", cfg.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", cfg.Health.ReadyHandler())
	}

	var chain http.Handler = mux
	chain = gwmw.CORS(cfg.CORS)(chain)
	if cfg.Metrics != nil {
		chain = pkgmw.Metrics(cfg.Metrics)(chain)
	}
	chain = pkgmw.Logging(chain)
	chain = pkgmw.Recover(chain)
	chain = pkgmw.RequestID(chain)
	return chain
}
