package metrics

import (
	"io"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"evostrat/internal/logging"
)

func TestObserveGeneration(t *testing.T) {
	r := NewRecorder()
	s := logging.GenerationSummary{Generation: 1, BestReward: 4, MeanReward: 2, NonFinite: 1, Rebuilt: 3, MutationSuccess: 0.5}
	r.ObserveGeneration("run", s, 5, 8)
	r.ObserveGeneration("run", logging.GenerationSummary{BestReward: math.Inf(-1)}, 1, 1)
	r.ObserveEvaluation(20 * time.Millisecond)
	r.NonFiniteSigma()

	if got := testutil.ToFloat64(r.generations); got != 2 {
		t.Fatalf("generations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.crossovers); got != 6 {
		t.Fatalf("crossovers = %v, want 6", got)
	}
	if got := testutil.ToFloat64(r.bestReward.WithLabelValues("run")); got != 4 {
		t.Fatalf("best reward = %v, want 4 (non-finite best is skipped)", got)
	}
	if got := testutil.ToFloat64(r.sigmaFailures); got != 1 {
		t.Fatalf("sigma failures = %v, want 1", got)
	}

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "evostrat_mutation_success_rate") {
		t.Fatalf("exposition missing series:\n%s", body)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.ObserveGeneration("run", logging.GenerationSummary{}, 1, 1)
	r.ObserveEvaluation(time.Second)
	r.NonFiniteSigma()
}
