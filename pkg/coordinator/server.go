package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kitemesh/kite/pkg/rpc"
)

// ServerConfig holds the RPC server configuration.
type ServerConfig struct {
	Address         string
	ShutdownTimeout time.Duration
}

// Server exposes the coordinator's RPC endpoints plus health, metrics,
// and graph diagnostics over HTTP (h2c-enabled).
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	listener   net.Listener
	service    *Service
	metrics    *Metrics
	log        *zap.SugaredLogger
}

func NewServer(cfg ServerConfig, svc *Service, metrics *Metrics) *Server {
	if cfg.Address == "" {
		cfg.Address = rpc.DefaultAddr
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		config:  cfg,
		service: svc,
		metrics: metrics,
		log:     zap.S().Named("rpcserver"),
	}

	mux := http.NewServeMux()
	handle(s, mux, rpc.PathSubscribe, svc.Subscribe)
	handle(s, mux, rpc.PathUnsubscribe, svc.Unsubscribe)
	handle(s, mux, rpc.PathRegisterPublisher, svc.RegisterPublisher)
	handle(s, mux, rpc.PathUnregisterPublisher, svc.UnregisterPublisher)
	handle(s, mux, rpc.PathGetNodes, svc.GetNodes)
	handle(s, mux, rpc.PathGetNodeInfo, svc.GetNodeInfo)
	handle(s, mux, rpc.PathGetTopics, svc.GetTopics)
	handle(s, mux, rpc.PathGetTopicInfo, svc.GetTopicInfo)

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})
	mux.HandleFunc("/graph", s.handleGraph)
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      h2c.NewHandler(mux, &http2.Server{}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// handle registers a POST JSON endpoint backed by a service method.
func handle[Req any, Resp interface{ StatusOf() rpc.Status }](s *Server, mux *http.ServeMux, path string, fn func(Req) Resp) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req Req
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.log.Warnw("bad rpc request", "path", path, "err", err)
			http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
			if s.metrics != nil {
				s.metrics.observeRequest(path, false)
			}
			return
		}

		resp := fn(req)
		if s.metrics != nil {
			s.metrics.observeRequest(path, resp.StatusOf().Success)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			s.log.Warnw("encode rpc response failed", "path", path, "err", err)
		}
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("format") {
	case "dot":
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		fmt.Fprint(w, s.service.Graph().DOT())
	case "readable":
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, s.service.Graph().Readable())
	default:
		raw, err := s.service.Graph().JSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(raw) //nolint:errcheck
	}
}

// Listen starts the server and blocks until the context is cancelled.
func (s *Server) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("rpc server listen on %s: %w", s.config.Address, err)
	}
	s.listener = ln
	s.log.Infow("rpc server started", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down rpc server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("rpc server: %w", err)
	}
}

// Addr returns the bound listener address, valid once Listen has
// started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
