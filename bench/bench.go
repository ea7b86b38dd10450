// Package bench repeats one invocation against an evolving state and reports
// latency statistics.
package bench

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/airchains-network/contract-harness/engine"
	"github.com/airchains-network/contract-harness/types"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/sirupsen/logrus"
)

// TimerName is the metrics timer every iteration is recorded on.
const TimerName = "harness/bench/call"

// Report summarises a run. Durations are wall clock per iteration.
type Report struct {
	Iterations int
	Total      time.Duration
	Mean       time.Duration
	Min        time.Duration
	Max        time.Duration
	P50        time.Duration
	P95        time.Duration
	P99        time.Duration
	GasUsed    uint64 // summed over iterations
	Succeeded  int
	Reverted   int
	Failed     int
}

// Runner drives the benchmark through an engine.
type Runner struct {
	engine *engine.Engine
	log    *logrus.Logger
	timer  metrics.Timer
}

// NewRunner creates a runner over eng.
func NewRunner(eng *engine.Engine, log *logrus.Logger) *Runner {
	if log == nil {
		log = logrus.New()
	}
	return &Runner{
		engine: eng,
		log:    log,
		timer:  metrics.GetOrRegisterTimer(TimerName, nil),
	}
}

// Run executes msg iterations times. Iterations that revert or fail are
// counted, only an engine error aborts the run. Cancellation is checked
// between iterations, the report covers the iterations that completed.
func (r *Runner) Run(ctx context.Context, msg types.CallContext, iterations int) (*Report, error) {
	report := &Report{}
	if iterations <= 0 {
		return report, nil
	}

	samples := make([]time.Duration, 0, iterations)
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			r.log.Warnf("Benchmark interrupted after %d of %d iterations", i, iterations)
			summarise(report, samples)
			return report, err
		}
		start := time.Now()
		res, err := r.engine.Execute(msg)
		elapsed := time.Since(start)
		if err != nil {
			summarise(report, samples)
			return report, fmt.Errorf("iteration %d: %w", i, err)
		}
		r.timer.Update(elapsed)
		samples = append(samples, elapsed)
		report.GasUsed += res.GasUsed
		switch res.Outcome.Status {
		case types.Succeeded:
			report.Succeeded++
		case types.Reverted:
			report.Reverted++
		default:
			report.Failed++
		}
	}
	summarise(report, samples)
	r.log.Infof("%d runs, total %s, average %s", report.Iterations, report.Total, report.Mean)
	return report, nil
}

func summarise(report *Report, samples []time.Duration) {
	report.Iterations = len(samples)
	if len(samples) == 0 {
		return
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, d := range sorted {
		report.Total += d
	}
	report.Mean = report.Total / time.Duration(len(sorted))
	report.Min = sorted[0]
	report.Max = sorted[len(sorted)-1]
	report.P50 = percentile(sorted, 50)
	report.P95 = percentile(sorted, 95)
	report.P99 = percentile(sorted, 99)
}

// percentile uses the nearest-rank method on sorted samples.
func percentile(sorted []time.Duration, p int) time.Duration {
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
