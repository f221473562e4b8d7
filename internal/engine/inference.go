package engine

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/crescendo-labs/crescendo/internal/events"
	"github.com/crescendo-labs/crescendo/internal/experiment"
	"github.com/crescendo-labs/crescendo/internal/stats"
)

// scheduledRecompute runs one inference pass for a running experiment
// and reports whether the early-stopping condition is met. Passes for
// experiments that left running between scheduling and execution are
// skipped, so a straggler tick can never overwrite a sealed result.
func (e *Engine) scheduledRecompute(id string) bool {
	e.mu.Lock()
	exp, ok := e.experiments[id]
	if !ok || exp.Status != experiment.StatusRunning {
		e.mu.Unlock()
		return false
	}

	res, ok := e.computeLocked(exp)
	if !ok {
		// Not enough data in one of the arms. The previous result, if
		// any, stays in place.
		e.mu.Unlock()
		e.log.Debug("recompute skipped, insufficient data", zap.String("experiment_id", id))
		return false
	}
	e.results[id] = res

	earlyStop := exp.Settings.EarlyStoppingEnabled &&
		res.Significant &&
		exp.SampleSize.Current >= exp.SampleSize.Minimum
	e.mu.Unlock()

	recomputationsTotal.WithLabelValues(id).Inc()
	e.bus.Publish(events.Event{Type: events.ResultsUpdated, ExperimentID: id})

	return earlyStop
}

// computeLocked runs the two-proportion z-test between the control arm
// and the first non-control arm. Caller holds e.mu. Returns false when
// either arm has no participants yet.
func (e *Engine) computeLocked(exp *experiment.Experiment) (*experiment.StatisticalResult, bool) {
	snapshot, order, ok := e.metrics.Snapshot(exp.ID)
	if !ok {
		return nil, false
	}

	control := exp.Baseline()
	var variantID string
	for _, id := range order {
		if id != control.ID {
			variantID = id
			break
		}
	}
	if variantID == "" {
		return nil, false
	}

	cm := snapshot[control.ID]
	vm := snapshot[variantID]
	if cm.Participants == 0 || vm.Participants == 0 {
		return nil, false
	}

	z := stats.ZScore(vm.ConversionRate, cm.ConversionRate, vm.Participants, cm.Participants)
	p := stats.PValue(z)

	var lift float64
	if cm.ConversionRate > 0 {
		lift = (vm.ConversionRate - cm.ConversionRate) / cm.ConversionRate * 100
	}

	return &experiment.StatisticalResult{
		ZScore:      round2(z),
		PValue:      round4(p),
		Confidence:  round2((1 - p) * 100),
		Significant: p < 1-exp.Settings.ConfidenceLevel,
		LiftPercent: round2(lift),
		ControlID:   control.ID,
		VariantID:   variantID,
		ComputedAt:  time.Now(),
	}, true
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
