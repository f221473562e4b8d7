package experiment

import (
	"fmt"
	"math"
	"time"
)

// Status is the lifecycle state of an experiment. Transitions are
// draft -> running -> {completed, stopped}; nothing else is legal.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
)

// ControlID is the conventional id of the baseline variation. When no
// variation carries it, the first declared variation acts as baseline.
const ControlID = "control"

// Built-in event types. Anything else is treated as a custom event and
// recorded without touching derived counters.
const (
	EventConversion = "conversion"
	EventBounce     = "bounce"
	EventPageView   = "page_view"
)

// Reasons an experiment can be stopped with.
const (
	StopReasonManual            = "manual"
	StopReasonEarlySignificance = "early_significance"
)

// Defaults applied to experiment definitions that leave settings blank.
const (
	DefaultConfidenceLevel    = 0.95
	DefaultMinimumSampleSize  = 100
	DefaultDetectableEffect   = 0.05
	DefaultPower              = 0.8
	DefaultBaselineConversion = 0.1
	DefaultDurationDays       = 14
	DefaultPrimaryMetric      = "conversion_rate"
)

// Variation is one arm of an experiment. Changes are opaque descriptors
// consumed by whatever renders the variation; the engine never
// interprets them.
type Variation struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Changes     []string `json:"changes,omitempty"`
}

// Targeting gates which users may enter the experiment at all, before
// any bucketing happens.
type Targeting struct {
	Segments          []string `json:"segments,omitempty"`
	TrafficAllocation float64  `json:"traffic_allocation"`
	Countries         []string `json:"countries,omitempty"`
	Devices           []string `json:"devices,omitempty"`
	NewUsersOnly      bool     `json:"new_users_only,omitempty"`
}

// Settings hold the statistical knobs for an experiment.
type Settings struct {
	ConfidenceLevel         float64 `json:"confidence_level"`
	MinimumDetectableEffect float64 `json:"minimum_detectable_effect"`
	BaselineConversion      float64 `json:"baseline_conversion"`
	Power                   float64 `json:"power"`
	EarlyStoppingEnabled    bool    `json:"early_stopping_enabled"`
}

// Schedule describes when an experiment runs. EndDate stays zero until
// the experiment starts, at which point it is computed from the start
// time plus DurationDays unless set explicitly.
type Schedule struct {
	StartDate    time.Time `json:"start_date,omitempty"`
	EndDate      time.Time `json:"end_date,omitempty"`
	DurationDays int       `json:"duration_days"`
}

// SampleSize tracks how many participants the experiment needs and has.
type SampleSize struct {
	Minimum int `json:"minimum"`
	Target  int `json:"target"`
	Current int `json:"current"`
}

// MetricSpec names the metrics an experiment cares about. Primary
// drives the significance decision.
type MetricSpec struct {
	Primary   string   `json:"primary"`
	Secondary []string `json:"secondary,omitempty"`
}

// Experiment is the full definition plus lifecycle state. The traffic
// split maps variation id to a percentage; the split is walked in
// variation declaration order, so the map plus the Variations slice
// together form the stable bucketing table.
type Experiment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Hypothesis  string `json:"hypothesis,omitempty"`
	Template    string `json:"template,omitempty"`

	Variations   []Variation        `json:"variations"`
	TrafficSplit map[string]float64 `json:"traffic_split"`
	Targeting    Targeting          `json:"targeting"`
	Metrics      MetricSpec         `json:"metrics"`
	Schedule     Schedule           `json:"schedule"`
	SampleSize   SampleSize         `json:"sample_size"`
	Settings     Settings           `json:"settings"`

	Status     Status `json:"status"`
	StopReason string `json:"stop_reason,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	StoppedAt   time.Time `json:"stopped_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

// ValidationError reports an experiment definition that cannot start.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid experiment: " + e.Reason
}

// ApplyDefaults fills unset fields with the framework defaults so a
// minimal definition is startable.
func (e *Experiment) ApplyDefaults() {
	if e.Settings.ConfidenceLevel == 0 {
		e.Settings.ConfidenceLevel = DefaultConfidenceLevel
	}
	if e.Settings.MinimumDetectableEffect == 0 {
		e.Settings.MinimumDetectableEffect = DefaultDetectableEffect
	}
	if e.Settings.BaselineConversion == 0 {
		e.Settings.BaselineConversion = DefaultBaselineConversion
	}
	if e.Settings.Power == 0 {
		e.Settings.Power = DefaultPower
	}
	if e.Targeting.TrafficAllocation == 0 {
		e.Targeting.TrafficAllocation = 100
	}
	if e.Metrics.Primary == "" {
		e.Metrics.Primary = DefaultPrimaryMetric
	}
	if e.Schedule.DurationDays == 0 {
		e.Schedule.DurationDays = DefaultDurationDays
	}
	if e.SampleSize.Minimum == 0 {
		e.SampleSize.Minimum = DefaultMinimumSampleSize
	}
	if len(e.TrafficSplit) == 0 && len(e.Variations) > 0 {
		e.TrafficSplit = EvenSplit(len(e.Variations))
	}
}

// Validate checks the start preconditions. A failed check leaves the
// experiment in draft; the caller surfaces the error.
func (e *Experiment) Validate() error {
	if len(e.Variations) < 2 {
		return &ValidationError{Reason: "at least 2 variations are required"}
	}

	var total float64
	for _, pct := range e.TrafficSplit {
		total += pct
	}
	if math.Abs(total-100) > 0.1 {
		return &ValidationError{Reason: fmt.Sprintf("traffic split must total 100%%, got %.2f%%", total)}
	}

	if e.Metrics.Primary == "" {
		return &ValidationError{Reason: "primary metric is required"}
	}

	if e.Targeting.TrafficAllocation <= 0 || e.Targeting.TrafficAllocation > 100 {
		return &ValidationError{Reason: "traffic allocation must be between 1-100%"}
	}

	return nil
}

// Variation returns the variation with the given id.
func (e *Experiment) Variation(id string) (Variation, bool) {
	for _, v := range e.Variations {
		if v.ID == id {
			return v, true
		}
	}
	return Variation{}, false
}

// Baseline returns the control variation, or the first declared
// variation when no variation is named control.
func (e *Experiment) Baseline() Variation {
	if v, ok := e.Variation(ControlID); ok {
		return v
	}
	return e.Variations[0]
}

// EvenSplit builds a 100/n traffic split using the conventional
// variation ids: control, variant_a, variant_b, ...
func EvenSplit(n int) map[string]float64 {
	split := make(map[string]float64, n)
	pct := 100 / float64(n)
	for i := 0; i < n; i++ {
		split[DefaultVariationID(i)] = pct
	}
	return split
}

// DefaultVariationID returns the conventional id for the i-th declared
// variation: control for the first, then variant_a, variant_b, ...
func DefaultVariationID(i int) string {
	if i == 0 {
		return ControlID
	}
	return "variant_" + string(rune('a'+i-1))
}
