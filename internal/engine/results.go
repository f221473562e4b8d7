package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/crescendo-labs/crescendo/internal/experiment"
	"github.com/crescendo-labs/crescendo/internal/metrics"
	"github.com/crescendo-labs/crescendo/internal/stats"
)

// VariationResult is the presentation view of one arm's counters. Rates
// are percentages rounded to two decimals.
type VariationResult struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Participants      int     `json:"participants"`
	Conversions       int     `json:"conversions"`
	ConversionRatePct float64 `json:"conversion_rate_pct"`
	CILowerPct        float64 `json:"ci_lower_pct"`
	CIUpperPct        float64 `json:"ci_upper_pct"`
	BounceRatePct     float64 `json:"bounce_rate_pct"`
	AvgTimeOnPage     float64 `json:"avg_time_on_page"`
	Revenue           float64 `json:"revenue"`
	RevenuePerVisitor float64 `json:"revenue_per_visitor"`
}

// Breakdown is a participant/conversion slice for one attribute value.
type Breakdown struct {
	Participants int     `json:"participants"`
	Conversions  int     `json:"conversions"`
	RatePct      float64 `json:"rate_pct"`
}

// Recommendation is the suggested action derived from the current
// statistical result and sample progress.
type Recommendation struct {
	Action     string `json:"action"`
	Reason     string `json:"reason"`
	Confidence string `json:"confidence"`
}

// Results is the full report for one experiment at a point in time.
type Results struct {
	ExperimentID string            `json:"experiment_id"`
	Name         string            `json:"name"`
	Status       experiment.Status `json:"status"`
	StartedAt    time.Time         `json:"started_at,omitempty"`
	DurationDays int               `json:"duration_days"`

	SampleSize experiment.SampleSize `json:"sample_size"`

	Variations  []VariationResult             `json:"variations"`
	Statistical *experiment.StatisticalResult `json:"statistical,omitempty"`

	Recommendation Recommendation        `json:"recommendation"`
	Timeline       []metrics.DailyMetric `json:"timeline,omitempty"`

	Devices  map[string]Breakdown `json:"devices,omitempty"`
	Segments map[string]Breakdown `json:"segments,omitempty"`
}

// Report is the final summary generated when an experiment completes.
type Report struct {
	ExperimentID  string    `json:"experiment_id"`
	Name          string    `json:"name"`
	WinnerID      string    `json:"winner_id"`
	WinnerName    string    `json:"winner_name"`
	LiftPercent   float64   `json:"lift_percent"`
	ConfidencePct float64   `json:"confidence_pct"`
	Significant   bool      `json:"significant"`
	KeyFindings   []string  `json:"key_findings"`
	NextSteps     []string  `json:"next_steps"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// FrameworkMetrics aggregates health numbers across all experiments.
type FrameworkMetrics struct {
	TotalExperiments     int     `json:"total_experiments"`
	RunningExperiments   int     `json:"running_experiments"`
	CompletedExperiments int     `json:"completed_experiments"`
	SignificantResults   int     `json:"significant_results"`
	TotalParticipants    int     `json:"total_participants"`
	AvgParticipants      float64 `json:"avg_participants"`
	SignificanceRatePct  float64 `json:"significance_rate_pct"`
	AverageLiftPct       float64 `json:"average_lift_pct"`
	TestVelocityPerMonth int     `json:"test_velocity_per_month"`
}

// ExperimentResults builds the report for an experiment. The timeline
// covers the last 7 days unless detailed is set; detailed also adds
// device and segment breakdowns computed from assignment attributes.
func (e *Engine) ExperimentResults(id string, detailed bool) (*Results, error) {
	e.mu.RLock()
	exp, ok := e.experiments[id]
	if !ok {
		e.mu.RUnlock()
		return nil, ErrExperimentNotFound
	}
	expCopy := *exp
	var stat *experiment.StatisticalResult
	if res, ok := e.results[id]; ok {
		cp := *res
		stat = &cp
	}
	e.mu.RUnlock()

	snapshot, order, _ := e.metrics.Snapshot(id)

	out := &Results{
		ExperimentID: id,
		Name:         expCopy.Name,
		Status:       expCopy.Status,
		StartedAt:    expCopy.StartedAt,
		SampleSize:   expCopy.SampleSize,
		Statistical:  stat,
	}

	if !expCopy.StartedAt.IsZero() {
		until := time.Now()
		if expCopy.Status == experiment.StatusStopped && !expCopy.StoppedAt.IsZero() {
			until = expCopy.StoppedAt
		}
		if expCopy.Status == experiment.StatusCompleted && !expCopy.CompletedAt.IsZero() {
			until = expCopy.CompletedAt
		}
		out.DurationDays = int(math.Ceil(until.Sub(expCopy.StartedAt).Hours() / 24))
	}

	for _, vid := range order {
		v, _ := expCopy.Variation(vid)
		vm := snapshot[vid]
		vr := VariationResult{
			ID:                vid,
			Name:              v.Name,
			Participants:      vm.Participants,
			Conversions:       vm.Conversions,
			ConversionRatePct: ratePct(vm.ConversionRate),
			AvgTimeOnPage:     round2(vm.TimeOnPage),
			Revenue:           round2(vm.Revenue),
		}
		if vm.Participants > 0 {
			lo, hi := stats.WilsonInterval(vm.Conversions, vm.Participants, expCopy.Settings.ConfidenceLevel)
			vr.CILowerPct = ratePct(lo)
			vr.CIUpperPct = ratePct(hi)
			vr.BounceRatePct = ratePct(float64(vm.Bounces) / float64(vm.Participants))
			vr.RevenuePerVisitor = round2(vm.Revenue / float64(vm.Participants))
		}
		out.Variations = append(out.Variations, vr)
	}

	out.Recommendation = e.recommend(&expCopy, stat)

	last := 7
	if detailed {
		last = 0
	}
	out.Timeline = e.metrics.Timeline(id, last)

	if detailed {
		out.Devices, out.Segments = e.breakdowns(id)
	}

	return out, nil
}

// recommend maps the statistical state onto an action. Sample progress
// gates the verdict: an insignificant result before the minimum sample
// is reached means keep collecting, after it means the change likely
// does not matter.
func (e *Engine) recommend(exp *experiment.Experiment, stat *experiment.StatisticalResult) Recommendation {
	if stat == nil || !stat.Significant {
		if exp.SampleSize.Current < exp.SampleSize.Minimum {
			return Recommendation{
				Action:     "continue",
				Reason:     "sample size below minimum, keep collecting data",
				Confidence: "low",
			}
		}
		return Recommendation{
			Action:     "no_change",
			Reason:     "no statistically significant difference detected",
			Confidence: "high",
		}
	}

	if stat.LiftPercent > 0 {
		confidence := "medium"
		if stat.Confidence > 95 {
			confidence = "high"
		}
		return Recommendation{
			Action:     "implement_variant",
			Reason:     fmt.Sprintf("%s outperforms %s by %.2f%%", stat.VariantID, stat.ControlID, stat.LiftPercent),
			Confidence: confidence,
		}
	}

	return Recommendation{
		Action:     "keep_control",
		Reason:     "variant underperforms the control",
		Confidence: "high",
	}
}

// breakdowns aggregates participants and conversions by device and by
// segment from the stored assignment attributes.
func (e *Engine) breakdowns(experimentID string) (devices, segments map[string]Breakdown) {
	devices = make(map[string]Breakdown)
	segments = make(map[string]Breakdown)

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, a := range e.assignments {
		if a.ExperimentID != experimentID {
			continue
		}
		converted := 0
		for _, ev := range a.Events {
			if ev.Type == experiment.EventConversion {
				converted = 1
				break
			}
		}

		dev := a.Attributes.Device
		if dev == "" {
			dev = "unknown"
		}
		d := devices[dev]
		d.Participants++
		d.Conversions += converted
		devices[dev] = d

		for _, seg := range a.Attributes.Segments {
			s := segments[seg]
			s.Participants++
			s.Conversions += converted
			segments[seg] = s
		}
	}

	for k, b := range devices {
		if b.Participants > 0 {
			b.RatePct = ratePct(float64(b.Conversions) / float64(b.Participants))
			devices[k] = b
		}
	}
	for k, b := range segments {
		if b.Participants > 0 {
			b.RatePct = ratePct(float64(b.Conversions) / float64(b.Participants))
			segments[k] = b
		}
	}
	return devices, segments
}

// Report returns the final report for a completed experiment.
func (e *Engine) Report(id string) (*Report, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	r, ok := e.reports[id]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// buildReport assembles the completion report from the final counters
// and statistical result. The winner is the arm with the highest
// conversion rate regardless of significance; significance qualifies
// the findings instead of hiding the numbers.
func (e *Engine) buildReport(id string) *Report {
	e.mu.RLock()
	exp, ok := e.experiments[id]
	if !ok {
		e.mu.RUnlock()
		return nil
	}
	expCopy := *exp
	var stat *experiment.StatisticalResult
	if res, ok := e.results[id]; ok {
		cp := *res
		stat = &cp
	}
	e.mu.RUnlock()

	snapshot, order, _ := e.metrics.Snapshot(id)

	report := &Report{
		ExperimentID: id,
		Name:         expCopy.Name,
		GeneratedAt:  time.Now(),
	}

	var best string
	var bestRate float64 = -1
	for _, vid := range order {
		if vm := snapshot[vid]; vm.ConversionRate > bestRate {
			bestRate = vm.ConversionRate
			best = vid
		}
	}
	if best != "" {
		report.WinnerID = best
		if v, ok := expCopy.Variation(best); ok {
			report.WinnerName = v.Name
		}
	}

	if stat != nil {
		report.LiftPercent = stat.LiftPercent
		report.ConfidencePct = stat.Confidence
		report.Significant = stat.Significant

		if stat.Significant {
			report.KeyFindings = append(report.KeyFindings,
				fmt.Sprintf("%s beat %s with %.2f%% lift at %.2f%% confidence",
					stat.VariantID, stat.ControlID, stat.LiftPercent, stat.Confidence))
			report.NextSteps = append(report.NextSteps,
				"roll the winning variation out to all traffic",
				"plan a follow-up test on the next funnel step")
		} else {
			report.KeyFindings = append(report.KeyFindings,
				"no statistically significant difference between variations")
			report.NextSteps = append(report.NextSteps,
				"keep the control experience",
				"test a bolder change or a different page element")
		}
	} else {
		report.KeyFindings = append(report.KeyFindings,
			"not enough data was collected to run the significance test")
		report.NextSteps = append(report.NextSteps,
			"rerun the experiment with more traffic or a longer duration")
	}

	total := e.metrics.TotalParticipants(id)
	report.KeyFindings = append(report.KeyFindings,
		fmt.Sprintf("%d participants across %d variations", total, len(order)))

	return report
}

// Metrics reports aggregate numbers across every known experiment. Test
// velocity counts experiments created in the trailing 30 days.
func (e *Engine) Metrics() FrameworkMetrics {
	e.mu.RLock()
	experiments := make([]*experiment.Experiment, 0, len(e.experiments))
	for _, exp := range e.experiments {
		experiments = append(experiments, exp)
	}
	results := make(map[string]experiment.StatisticalResult, len(e.results))
	for id, res := range e.results {
		results[id] = *res
	}
	e.mu.RUnlock()

	sort.Slice(experiments, func(i, j int) bool {
		return experiments[i].CreatedAt.Before(experiments[j].CreatedAt)
	})

	var fm FrameworkMetrics
	fm.TotalExperiments = len(experiments)

	var liftSum float64
	var decided int
	cutoff := time.Now().AddDate(0, 0, -30)

	for _, exp := range experiments {
		switch exp.Status {
		case experiment.StatusRunning:
			fm.RunningExperiments++
		case experiment.StatusCompleted:
			fm.CompletedExperiments++
		}

		fm.TotalParticipants += e.metrics.TotalParticipants(exp.ID)

		if res, ok := results[exp.ID]; ok {
			decided++
			if res.Significant {
				fm.SignificantResults++
				liftSum += res.LiftPercent
			}
		}

		if exp.CreatedAt.After(cutoff) {
			fm.TestVelocityPerMonth++
		}
	}

	if fm.TotalExperiments > 0 {
		fm.AvgParticipants = round2(float64(fm.TotalParticipants) / float64(fm.TotalExperiments))
	}
	if decided > 0 {
		fm.SignificanceRatePct = round2(float64(fm.SignificantResults) / float64(decided) * 100)
	}
	if fm.SignificantResults > 0 {
		fm.AverageLiftPct = round2(liftSum / float64(fm.SignificantResults))
	}
	return fm
}

// ratePct converts a 0..1 rate to a percentage rounded to 2 decimals.
func ratePct(rate float64) float64 {
	return math.Round(rate*10000) / 100
}
