// internal/hostgateway/debug.go
// Optional HTTP listener exposing:
//   - /ws      – WebSocket stream of session lifecycle events, for operator
//                tooling; never carries Assuan payload bytes.
//   - /metrics – Prometheus scrape endpoint.
//
// Kept as a separate listener from the gRPC command channel so deployments
// can route operator/HTTP traffic through a different port or ALB than the
// gRPC traffic.
package hostgateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nimbusrelay/gpgbridge/internal/logging"
	"github.com/nimbusrelay/gpgbridge/internal/metrics"
)

// DebugHTTPConfig controls the optional debug listener.
type DebugHTTPConfig struct {
	ListenAddr    string // e.g. ":8080"; caller only starts the listener if non-empty
	EnableMetrics bool
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// StartDebugHTTP starts the debug HTTP server in its own goroutine and
// returns it so the caller can Shutdown it during graceful teardown.
func (s *Server) StartDebugHTTP(cfg DebugHTTPConfig) *http.Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleDebugWebSocket)
	if cfg.EnableMetrics {
		metrics.Register()
		mux.Handle("/metrics", promhttp.Handler())
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Sugar().Warnw("debug http listener error", "err", err)
		}
	}()
	logging.Sugar().Infow("debug http listener started", "addr", cfg.ListenAddr)
	return srv
}

var debugUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleDebugWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := debugUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Sugar().Warnw("ws upgrade", "err", err)
		return
	}

	ch, unregister := s.Subscribe()
	metrics.Subscribers.Inc()
	defer func() {
		unregister()
		metrics.Subscribers.Dec()
		_ = conn.Close()
	}()

	for buf := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, buf); err != nil {
			logging.Sugar().Debugw("ws write", "err", err)
			return
		}
	}
}
