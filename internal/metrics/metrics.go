// Package metrics exports run progress as prometheus series.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"evostrat/internal/logging"
	"evostrat/internal/randutil"
)

// Recorder holds the run's series on its own registry, so several engines
// in one process (tests) never collide on the default one
type Recorder struct {
	reg *prometheus.Registry

	generations   prometheus.Counter
	crossovers    prometheus.Counter
	mutations     prometheus.Counter
	rebuilt       prometheus.Counter
	nonFinite     prometheus.Counter
	sigmaFailures prometheus.Counter

	bestReward       *prometheus.GaugeVec
	meanReward       *prometheus.GaugeVec
	crossoverSuccess *prometheus.GaugeVec
	mutationSuccess  *prometheus.GaugeVec
	logSigma         *prometheus.GaugeVec
	evalSeconds      prometheus.Histogram
}

// NewRecorder registers every series
func NewRecorder() *Recorder {
	r := &Recorder{
		reg:           prometheus.NewRegistry(),
		generations:   prometheus.NewCounter(prometheus.CounterOpts{Name: "evostrat_generations_total"}),
		crossovers:    prometheus.NewCounter(prometheus.CounterOpts{Name: "evostrat_crossovers_total"}),
		mutations:     prometheus.NewCounter(prometheus.CounterOpts{Name: "evostrat_mutations_total"}),
		rebuilt:       prometheus.NewCounter(prometheus.CounterOpts{Name: "evostrat_environments_rebuilt_total"}),
		nonFinite:     prometheus.NewCounter(prometheus.CounterOpts{Name: "evostrat_nonfinite_rewards_total"}),
		sigmaFailures: prometheus.NewCounter(prometheus.CounterOpts{Name: "evostrat_nonfinite_sigmas_total"}),

		bestReward:       prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "evostrat_best_reward"}, []string{"run_id"}),
		meanReward:       prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "evostrat_mean_reward"}, []string{"run_id"}),
		crossoverSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "evostrat_crossover_success_rate"}, []string{"run_id"}),
		mutationSuccess:  prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "evostrat_mutation_success_rate"}, []string{"run_id"}),
		logSigma:         prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "evostrat_mean_log_sigma"}, []string{"run_id", "group"}),
		evalSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "evostrat_evaluation_seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	r.reg.MustRegister(
		r.generations, r.crossovers, r.mutations, r.rebuilt, r.nonFinite, r.sigmaFailures,
		r.bestReward, r.meanReward, r.crossoverSuccess, r.mutationSuccess, r.logSigma, r.evalSeconds,
	)
	return r
}

// ObserveGeneration records one summary
func (r *Recorder) ObserveGeneration(runID string, s logging.GenerationSummary, crossovers, mutations int) {
	if r == nil {
		return
	}
	r.generations.Inc()
	r.crossovers.Add(float64(crossovers))
	r.mutations.Add(float64(mutations))
	r.rebuilt.Add(float64(s.Rebuilt))
	r.nonFinite.Add(float64(s.NonFinite))

	labels := prometheus.Labels{"run_id": runID}
	if randutil.IsFinite(s.BestReward) {
		r.bestReward.With(labels).Set(s.BestReward)
	}
	r.meanReward.With(labels).Set(s.MeanReward)
	r.crossoverSuccess.With(labels).Set(s.CrossoverSuccess)
	r.mutationSuccess.With(labels).Set(s.MutationSuccess)
	r.logSigma.WithLabelValues(runID, "hidden").Set(s.MeanLogSigmaW)
	r.logSigma.WithLabelValues(runID, "output").Set(s.MeanLogSigmaOut)
	r.logSigma.WithLabelValues(runID, "body").Set(s.MeanLogSigmaBody)
}

// ObserveEvaluation records how long one population evaluation took
func (r *Recorder) ObserveEvaluation(d time.Duration) {
	if r == nil {
		return
	}
	r.evalSeconds.Observe(d.Seconds())
}

// NonFiniteSigma counts a mutation that produced a non-finite strength
func (r *Recorder) NonFiniteSigma() {
	if r == nil {
		return
	}
	r.sigmaFailures.Inc()
}

// Handler serves the registry in the exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (r *Recorder) Serve(ctx context.Context, addr string, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics endpoint", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
