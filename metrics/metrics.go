// Package metrics exposes run progress as Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deploybot"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	attempts     *prometheus.CounterVec
	followUps    *prometheus.CounterVec
	waitSeconds  *prometheus.GaugeVec
	walletsDone  prometheus.Counter
	walletsTotal prometheus.Gauge
}

// New registers the collectors on a fresh registry, served only by Serve.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deploy_attempts_total",
				Help:      "Deployment attempts by result",
			},
			[]string{"result"},
		),
		followUps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "follow_up_decisions_total",
				Help:      "Follow-up updateMessage decisions after successful deployments",
			},
			[]string{"decision"},
		),
		waitSeconds: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "current_wait_seconds",
				Help:      "Length of the wait in progress, zero when not waiting",
			},
			[]string{"kind"},
		),
		walletsDone: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wallets_processed_total",
				Help:      "Wallets whose plan has been fully executed",
			},
		),
		walletsTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "wallets",
				Help:      "Wallets loaded for the run",
			},
		),
	}
}

// ObserveAttempt counts a finished deployment attempt.
func (m *Metrics) ObserveAttempt(success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.attempts.WithLabelValues(result).Inc()
}

// ObserveFollowUp counts a follow-up decision.
func (m *Metrics) ObserveFollowUp(sent bool) {
	if m == nil {
		return
	}
	decision := "skipped"
	if sent {
		decision = "sent"
	}
	m.followUps.WithLabelValues(decision).Inc()
}

// Waiting records a wait of kind starting; call the returned func when it ends.
func (m *Metrics) Waiting(kind string, d time.Duration) func() {
	if m == nil {
		return func() {}
	}
	g := m.waitSeconds.WithLabelValues(kind)
	g.Set(d.Seconds())
	return func() { g.Set(0) }
}

// SetWallets records how many wallets the run will process.
func (m *Metrics) SetWallets(n int) {
	if m == nil {
		return
	}
	m.walletsTotal.Set(float64(n))
}

// WalletDone counts a wallet whose plan is complete.
func (m *Metrics) WalletDone() {
	if m == nil {
		return
	}
	m.walletsDone.Inc()
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", "err", err)
		}
	}()

	logger.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
