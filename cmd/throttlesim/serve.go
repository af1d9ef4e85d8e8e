package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/vnykmshr/detthrottle/pkg/metrics"
	"github.com/vnykmshr/detthrottle/pkg/throttle"
	"github.com/vnykmshr/detthrottle/pkg/throttle/definitions"
	"github.com/vnykmshr/detthrottle/pkg/throttle/reload"
)

func newServeCmd(opts *options) *cobra.Command {
	var (
		addr        string
		reloadEvery string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve throttling decisions and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			observer := metrics.NewThrottleObserver(metrics.NewRegistry(reg))

			sim, err := opts.newSimulator(throttle.WithObserver(observer))
			if err != nil {
				return err
			}
			srv := newServer(sim, reg)

			if reloadEvery != "" {
				reloader, err := reload.New(reload.Config{
					Spec:    reloadEvery,
					Load:    func() (*definitions.Definitions, error) { return definitions.Load(opts.definitions) },
					Targets: []reload.Target{sim.throttling},
					Locker:  &srv.mu,
				})
				if err != nil {
					return err
				}
				reloader.Start()
				defer reloader.Stop()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.listenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&reloadEvery, "reload-every", "", `reload definitions on this cron schedule, e.g. "@every 1m"`)
	return cmd
}

// server serializes every decision on one Throttling.
type server struct {
	mu  sync.Mutex
	sim *simulator
	mux *http.ServeMux
	now func() time.Time
}

type txnRequest struct {
	throttle.TxnInfo
	ConsensusTime time.Time `json:"consensusTime"`
}

type queryRequest struct {
	throttle.QueryInfo
	ConsensusTime time.Time `json:"consensusTime"`
}

type decisionResponse struct {
	Throttled    bool `json:"throttled"`
	GasThrottled bool `json:"gasThrottled"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newServer(sim *simulator, reg *prometheus.Registry) *server {
	s := &server{sim: sim, mux: http.NewServeMux(), now: time.Now}
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	s.mux.HandleFunc("POST /v1/txn", s.handleTxn)
	s.mux.HandleFunc("POST /v1/query", s.handleQuery)
	return s
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *server) listenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		klog.Infof("Serving %s throttling decisions on %s", s.sim.throttling.Mode(), addr)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) decisionTime(t time.Time) time.Time {
	if t.IsZero() {
		now := s.now()
		klog.V(2).Infof("No consensusTime in request, deciding at server time %s", now.Format(time.RFC3339Nano))
		return now
	}
	return t
}

func (s *server) handleTxn(w http.ResponseWriter, r *http.Request) {
	var req txnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	s.mu.Lock()
	throttled, err := s.sim.throttling.ShouldThrottleTxn(&req.TxnInfo, s.decisionTime(req.ConsensusTime))
	gasThrottled := s.sim.throttling.WasLastTxnGasThrottled()
	s.mu.Unlock()

	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{Throttled: throttled, GasThrottled: gasThrottled})
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	s.mu.Lock()
	throttled, err := s.sim.throttling.ShouldThrottleQuery(req.QueryInfo, s.decisionTime(req.ConsensusTime))
	gasThrottled := s.sim.throttling.WasLastTxnGasThrottled()
	s.mu.Unlock()

	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{Throttled: throttled, GasThrottled: gasThrottled})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.Errorf("Writing response: %v", err)
	}
}
