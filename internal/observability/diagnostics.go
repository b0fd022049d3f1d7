package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// readHeaderTimeout bounds slow clients of the diagnostics endpoint.
const readHeaderTimeout = 5 * time.Second

const (
	probeOK          = "ok"
	probeUnavailable = "unavailable"
)

// ReadyCheck is one named readiness condition of a running batch.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// probeReply is the JSON body of /healthz and /readyz. Checks maps every
// readiness condition to "ok" or its error.
type probeReply struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Liveness answers /healthz. The process is alive while it can answer.
func Liveness() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		writeProbe(rw, http.StatusOK, probeReply{Status: probeOK})
	})
}

// Readiness answers /readyz by running every check. Any failure turns the
// answer into HTTP 503; all results are listed either way.
func Readiness(checks ...ReadyCheck) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		reply := probeReply{Status: probeOK}
		code := http.StatusOK

		if len(checks) > 0 {
			reply.Checks = make(map[string]string, len(checks))
		}

		for _, rc := range checks {
			err := rc.Check(hr.Context())
			if err != nil {
				reply.Checks[rc.Name] = err.Error()
				reply.Status = probeUnavailable
				code = http.StatusServiceUnavailable

				continue
			}

			reply.Checks[rc.Name] = probeOK
		}

		writeProbe(rw, code, reply)
	})
}

func writeProbe(rw http.ResponseWriter, code int, reply probeReply) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	_ = json.NewEncoder(rw).Encode(reply)
}

// DiagnosticsServer serves /healthz, /readyz and, with a metrics handler,
// /metrics while a batch is running.
type DiagnosticsServer struct {
	server   *http.Server
	listener net.Listener
}

// NewDiagnosticsServer listens on addr and serves in the background until
// [DiagnosticsServer.Close].
func NewDiagnosticsServer(addr string, metrics http.Handler, logger *slog.Logger, checks ...ReadyCheck) (*DiagnosticsServer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var lc net.ListenConfig

	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", Liveness())
	mux.Handle("GET /readyz", Readiness(checks...))

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	d := &DiagnosticsServer{
		server:   &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout},
		listener: listener,
	}

	go func() {
		serveErr := d.server.Serve(listener)
		if !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Warn("diagnostics server stopped", "error", serveErr)
		}
	}()

	return d, nil
}

// Addr returns the bound address, useful when addr had port 0.
func (d *DiagnosticsServer) Addr() string {
	return d.listener.Addr().String()
}

// Close stops accepting requests and waits for in-flight ones.
func (d *DiagnosticsServer) Close(ctx context.Context) error {
	err := d.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown diagnostics server: %w", err)
	}

	return nil
}
