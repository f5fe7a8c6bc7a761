package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/websearch/pkg/config"
)

// Server is the scrape endpoint a pipeline process exposes next to its
// main work. A nil *Server is a disabled endpoint.
type Server struct {
	http *http.Server
	addr net.Addr
}

// Serve binds cfg.Port before returning, so a port already in use fails
// startup instead of surfacing later in a log line. Port 0 picks a free
// port. With metrics disabled it returns a nil Server.
func Serve(cfg config.MetricsConfig) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("binding metrics port %d: %w", cfg.Port, err)
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	s := &Server{
		http: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		addr: ln.Addr(),
	}
	slog.Info("metrics endpoint listening", "addr", s.addr.String())
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics endpoint stopped", "error", err)
		}
	}()
	return s, nil
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr.String()
}

// Shutdown stops the endpoint, waiting for in-flight scrapes up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
