// Package engine is the experiment core: deterministic assignment,
// metric accumulation, statistical inference and lifecycle control.
// Everything else in the repository is glue around this package.
package engine

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crescendo-labs/crescendo/internal/bucket"
	"github.com/crescendo-labs/crescendo/internal/events"
	"github.com/crescendo-labs/crescendo/internal/experiment"
	"github.com/crescendo-labs/crescendo/internal/metrics"
	"github.com/crescendo-labs/crescendo/internal/stats"
	"github.com/crescendo-labs/crescendo/internal/store"
)

const defaultRecomputeInterval = time.Hour

// Engine owns all experiment state. Assignments and metrics are
// mutated only through its methods; external components get snapshots
// and bus notifications, never write access.
type Engine struct {
	mu          sync.RWMutex
	experiments map[string]*experiment.Experiment
	assignments map[string]*experiment.Assignment
	results     map[string]*experiment.StatisticalResult
	reports     map[string]*Report

	metrics *metrics.Store
	store   store.Store
	bus     *events.Bus
	sched   *scheduler
	log     *zap.Logger
	draw    func() float64
	cadence time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithRecomputeInterval overrides the default hourly result
// recomputation cadence.
func WithRecomputeInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.cadence = d
		}
	}
}

// WithDraw replaces the uniform [0,1) source used for the
// traffic-allocation lottery. Tests inject a deterministic draw; the
// bucketing hash is unaffected.
func WithDraw(draw func() float64) Option {
	return func(e *Engine) { e.draw = draw }
}

func New(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		experiments: make(map[string]*experiment.Experiment),
		assignments: make(map[string]*experiment.Assignment),
		results:     make(map[string]*experiment.StatisticalResult),
		reports:     make(map[string]*Report),
		metrics:     metrics.NewStore(),
		store:       st,
		bus:         events.NewBus(),
		log:         zap.L().Named("engine"),
		draw:        rand.Float64,
		cadence:     defaultRecomputeInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sched = newScheduler(e.log)
	return e
}

// Bus exposes the notification bus for external subscribers.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

// Close cancels all schedulers and shuts the bus down. The injected
// store is left open for its owner to close.
func (e *Engine) Close() {
	e.sched.stopAll()
	e.bus.Close()
}

func participantKey(experimentID, userID string) string {
	return experimentID + "_" + userID
}

// CreateExperiment registers a draft. A template key, when set, seeds
// variations, metrics and duration; explicit fields win over the
// template. The target sample size is derived from the baseline
// conversion and minimum detectable effect when not given.
func (e *Engine) CreateExperiment(ctx context.Context, exp *experiment.Experiment) (*experiment.Experiment, error) {
	if exp == nil {
		return nil, &experiment.ValidationError{Reason: "experiment definition is required"}
	}

	if exp.Template != "" {
		tpl, ok := experiment.Template(exp.Template)
		if !ok {
			return nil, &experiment.ValidationError{Reason: "unknown template: " + exp.Template}
		}
		if exp.Name == "" {
			exp.Name = tpl.Name
		}
		if len(exp.Variations) == 0 {
			exp.Variations = append([]experiment.Variation(nil), tpl.Variations...)
		}
		if exp.Metrics.Primary == "" {
			exp.Metrics.Primary = tpl.PrimaryMetric
		}
		if len(exp.Metrics.Secondary) == 0 {
			exp.Metrics.Secondary = append([]string(nil), tpl.Metrics...)
		}
		if exp.Schedule.DurationDays == 0 {
			exp.Schedule.DurationDays = tpl.DurationDays
		}
	}

	if exp.ID == "" {
		exp.ID = "exp_" + uuid.NewString()
	}

	now := time.Now()
	exp.Status = experiment.StatusDraft
	exp.CreatedAt = now
	exp.UpdatedAt = now
	exp.ApplyDefaults()

	if exp.SampleSize.Target == 0 {
		exp.SampleSize.Target = stats.RequiredSampleSize(
			exp.Settings.BaselineConversion,
			exp.Settings.MinimumDetectableEffect,
			exp.Settings.ConfidenceLevel,
			exp.Settings.Power,
		)
	}

	if err := e.store.SaveExperiment(ctx, exp); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.experiments[exp.ID] = exp
	e.mu.Unlock()

	e.log.Info("experiment created",
		zap.String("experiment_id", exp.ID),
		zap.String("name", exp.Name),
		zap.Int("variations", len(exp.Variations)),
	)
	e.bus.Publish(events.Event{Type: events.ExperimentCreated, ExperimentID: exp.ID})

	return e.snapshotExperiment(exp.ID)
}

// StartExperiment transitions a draft to running. Validation failures
// leave the experiment in draft; state errors leave it untouched.
func (e *Engine) StartExperiment(ctx context.Context, id string) (*experiment.Experiment, error) {
	e.mu.Lock()
	exp, ok := e.experiments[id]
	if !ok {
		e.mu.Unlock()
		return nil, ErrExperimentNotFound
	}
	if exp.Status != experiment.StatusDraft {
		status := exp.Status
		e.mu.Unlock()
		return nil, &StateError{Op: "start", Status: status}
	}
	if err := exp.Validate(); err != nil {
		e.mu.Unlock()
		return nil, err
	}

	now := time.Now()
	exp.Status = experiment.StatusRunning
	exp.StartedAt = now
	exp.UpdatedAt = now
	if exp.Schedule.StartDate.IsZero() {
		exp.Schedule.StartDate = now
	}
	if exp.Schedule.EndDate.IsZero() {
		exp.Schedule.EndDate = now.Add(time.Duration(exp.Schedule.DurationDays) * 24 * time.Hour)
	}

	variationIDs := make([]string, len(exp.Variations))
	for i, v := range exp.Variations {
		variationIDs[i] = v.ID
	}
	e.metrics.Init(exp.ID, variationIDs)

	endsAt := exp.Schedule.EndDate
	e.mu.Unlock()

	if err := e.store.SaveExperiment(ctx, e.mustSnapshot(id)); err != nil {
		e.log.Error("persist experiment start", zap.String("experiment_id", id), zap.Error(err))
	}

	e.sched.start(id, endsAt, e.cadence,
		func(tickCtx context.Context) bool {
			if e.scheduledRecompute(id) {
				if _, err := e.StopExperiment(tickCtx, id, experiment.StopReasonEarlySignificance); err != nil {
					e.log.Error("early stop failed", zap.String("experiment_id", id), zap.Error(err))
				}
				return true
			}
			return false
		},
		func(completeCtx context.Context) {
			e.completeExperiment(completeCtx, id)
		},
	)

	e.log.Info("experiment started",
		zap.String("experiment_id", id),
		zap.Time("ends_at", endsAt),
	)
	e.bus.Publish(events.Event{Type: events.ExperimentStarted, ExperimentID: id})

	return e.snapshotExperiment(id)
}

// AssignUserToVariation returns the user's assignment for a running
// experiment, creating it on first contact. A nil assignment with a
// nil error means the user is not eligible; that is not a failure and
// the caller may retry on a later request. Assignment is idempotent:
// the existing record is returned before any eligibility draw, so a
// user already in the experiment stays in it.
func (e *Engine) AssignUserToVariation(ctx context.Context, userID, experimentID string, attrs experiment.UserAttributes) (*experiment.Assignment, error) {
	e.mu.Lock()
	exp, ok := e.experiments[experimentID]
	if !ok {
		e.mu.Unlock()
		return nil, ErrExperimentNotFound
	}
	if exp.Status != experiment.StatusRunning {
		e.mu.Unlock()
		return nil, nil
	}

	key := participantKey(experimentID, userID)
	if existing, ok := e.assignments[key]; ok {
		cp := copyAssignment(existing)
		e.mu.Unlock()
		return cp, nil
	}

	if !bucket.Eligible(exp, attrs, e.draw()) {
		e.mu.Unlock()
		return nil, nil
	}

	v := bucket.Assign(userID, exp)
	assignment := &experiment.Assignment{
		UserID:        userID,
		ExperimentID:  experimentID,
		VariationID:   v.ID,
		VariationName: v.Name,
		AssignedAt:    time.Now(),
		Attributes:    attrs,
	}
	e.assignments[key] = assignment
	if err := e.metrics.RecordParticipant(experimentID, v.ID); err != nil {
		// Roll the assignment back so one event is all-or-nothing.
		delete(e.assignments, key)
		e.mu.Unlock()
		return nil, err
	}
	exp.SampleSize.Current++
	cp := copyAssignment(assignment)
	e.mu.Unlock()

	if err := e.store.SaveAssignment(ctx, cp); err != nil {
		e.log.Error("persist assignment",
			zap.String("experiment_id", experimentID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	assignmentsTotal.WithLabelValues(experimentID, v.ID).Inc()
	e.bus.Publish(events.Event{
		Type:         events.UserAssigned,
		ExperimentID: experimentID,
		UserID:       userID,
		VariationID:  v.ID,
	})

	return cp, nil
}

// TrackEvent records an interaction for an assigned participant and
// updates the variation counters.
func (e *Engine) TrackEvent(ctx context.Context, userID, experimentID, eventType string, payload experiment.EventPayload) (*experiment.Event, error) {
	e.mu.Lock()
	assignment, ok := e.assignments[participantKey(experimentID, userID)]
	if !ok {
		e.mu.Unlock()
		return nil, ErrUserNotInExperiment
	}

	ev := experiment.Event{
		Type:        eventType,
		Payload:     payload,
		Timestamp:   time.Now(),
		VariationID: assignment.VariationID,
	}

	if err := e.metrics.RecordEvent(experimentID, assignment.VariationID, ev); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	assignment.Events = append(assignment.Events, ev)
	e.mu.Unlock()

	if err := e.store.AppendEvent(ctx, experimentID, userID, ev); err != nil {
		e.log.Error("persist event",
			zap.String("experiment_id", experimentID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	trackedEventsTotal.WithLabelValues(experimentID, eventType).Inc()
	e.bus.Publish(events.Event{
		Type:         events.EventTracked,
		ExperimentID: experimentID,
		UserID:       userID,
		VariationID:  ev.VariationID,
		EventType:    eventType,
	})

	return &ev, nil
}

// StopExperiment halts a running experiment. One final recomputation
// runs before the result is sealed.
func (e *Engine) StopExperiment(ctx context.Context, id, reason string) (*experiment.Experiment, error) {
	if reason != experiment.StopReasonManual && reason != experiment.StopReasonEarlySignificance {
		return nil, ErrInvalidStopReason
	}
	return e.seal(ctx, id, experiment.StatusStopped, reason)
}

// completeExperiment seals a running experiment at its scheduled end
// and generates the final report.
func (e *Engine) completeExperiment(ctx context.Context, id string) {
	if _, err := e.seal(ctx, id, experiment.StatusCompleted, ""); err != nil {
		e.log.Error("complete experiment", zap.String("experiment_id", id), zap.Error(err))
	}
}

// seal performs the terminal transition: a last inference pass while
// still running, then the status flip, scheduler cancellation and
// persistence. After seal returns no scheduled task can revive the
// result.
func (e *Engine) seal(ctx context.Context, id string, status experiment.Status, reason string) (*experiment.Experiment, error) {
	e.mu.Lock()
	exp, ok := e.experiments[id]
	if !ok {
		e.mu.Unlock()
		return nil, ErrExperimentNotFound
	}
	op := "stop"
	if status == experiment.StatusCompleted {
		op = "complete"
	}
	if exp.Status != experiment.StatusRunning {
		current := exp.Status
		e.mu.Unlock()
		return nil, &StateError{Op: op, Status: current}
	}

	if res, ok := e.computeLocked(exp); ok {
		e.results[id] = res
		recomputationsTotal.WithLabelValues(id).Inc()
	}

	now := time.Now()
	exp.Status = status
	exp.UpdatedAt = now
	switch status {
	case experiment.StatusStopped:
		exp.StoppedAt = now
		exp.StopReason = reason
	case experiment.StatusCompleted:
		exp.CompletedAt = now
	}
	e.mu.Unlock()

	e.sched.stop(id)

	if status == experiment.StatusCompleted {
		report := e.buildReport(id)
		e.mu.Lock()
		e.reports[id] = report
		e.mu.Unlock()
	}

	if err := e.store.SaveExperiment(ctx, e.mustSnapshot(id)); err != nil {
		e.log.Error("persist experiment seal", zap.String("experiment_id", id), zap.Error(err))
	}

	evType := events.ExperimentStopped
	if status == experiment.StatusCompleted {
		evType = events.ExperimentCompleted
	}
	e.log.Info("experiment sealed",
		zap.String("experiment_id", id),
		zap.String("status", string(status)),
		zap.String("reason", reason),
	)
	e.bus.Publish(events.Event{Type: evType, ExperimentID: id, Reason: reason})

	return e.snapshotExperiment(id)
}

// Experiment returns a copy of the experiment definition and state.
func (e *Engine) Experiment(id string) (*experiment.Experiment, error) {
	return e.snapshotExperiment(id)
}

// ListExperiments returns copies of all known experiments, newest
// first.
func (e *Engine) ListExperiments() []*experiment.Experiment {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*experiment.Experiment, 0, len(e.experiments))
	for _, exp := range e.experiments {
		cp := *exp
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// StatisticalResult returns the current result for an experiment, or
// false when no inference pass has produced one yet.
func (e *Engine) StatisticalResult(id string) (*experiment.StatisticalResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	res, ok := e.results[id]
	if !ok {
		return nil, false
	}
	cp := *res
	return &cp, true
}

// Rehydrate loads persisted experiments and rebuilds the in-memory
// state of running ones by replaying assignments and events in
// timestamp order, then reschedules them. Order matters: the running
// time-on-page mean divides by the participant count at event time,
// so the replay must interleave the two streams the way they happened
// live. Experiments whose end time passed during downtime complete
// immediately.
func (e *Engine) Rehydrate(ctx context.Context) error {
	experiments, err := e.store.ListExperiments(ctx)
	if err != nil {
		return err
	}

	var running []string
	e.mu.Lock()
	for _, exp := range experiments {
		e.experiments[exp.ID] = exp
		if exp.Status != experiment.StatusRunning {
			continue
		}
		running = append(running, exp.ID)

		variationIDs := make([]string, len(exp.Variations))
		for i, v := range exp.Variations {
			variationIDs[i] = v.ID
		}
		e.metrics.Init(exp.ID, variationIDs)
		exp.SampleSize.Current = 0

		assignments, err := e.store.ListAssignments(ctx, exp.ID)
		if err != nil {
			e.mu.Unlock()
			return err
		}
		storedEvents, err := e.store.ListEvents(ctx, exp.ID)
		if err != nil {
			e.mu.Unlock()
			return err
		}

		// Merge both streams into one timestamp-ordered log. On a tie
		// the assignment goes first: an event can never precede its
		// own assignment.
		type replayStep struct {
			at         time.Time
			assignment *experiment.Assignment
			event      *store.StoredEvent
		}
		steps := make([]replayStep, 0, len(assignments)+len(storedEvents))
		for _, a := range assignments {
			steps = append(steps, replayStep{at: a.AssignedAt, assignment: a})
		}
		for i := range storedEvents {
			steps = append(steps, replayStep{at: storedEvents[i].Event.Timestamp, event: &storedEvents[i]})
		}
		sort.SliceStable(steps, func(i, j int) bool {
			if steps[i].at.Equal(steps[j].at) {
				return steps[i].assignment != nil && steps[j].assignment == nil
			}
			return steps[i].at.Before(steps[j].at)
		})

		for _, step := range steps {
			if a := step.assignment; a != nil {
				if a.VariationName == "" {
					if v, ok := exp.Variation(a.VariationID); ok {
						a.VariationName = v.Name
					}
				}
				e.assignments[participantKey(exp.ID, a.UserID)] = a
				if err := e.metrics.RecordParticipant(exp.ID, a.VariationID); err != nil {
					e.log.Warn("skipping assignment for unknown variation",
						zap.String("experiment_id", exp.ID),
						zap.String("variation_id", a.VariationID),
					)
					continue
				}
				exp.SampleSize.Current++
				continue
			}

			se := step.event
			if a, ok := e.assignments[participantKey(exp.ID, se.UserID)]; ok {
				a.Events = append(a.Events, se.Event)
			}
			if err := e.metrics.RecordEvent(exp.ID, se.Event.VariationID, se.Event); err != nil {
				e.log.Warn("skipping event for unknown variation",
					zap.String("experiment_id", exp.ID),
					zap.String("variation_id", se.Event.VariationID),
				)
			}
		}
	}
	e.mu.Unlock()

	for _, id := range running {
		exp, err := e.snapshotExperiment(id)
		if err != nil {
			continue
		}
		e.sched.start(id, exp.Schedule.EndDate, e.cadence,
			func(tickCtx context.Context) bool {
				if e.scheduledRecompute(id) {
					if _, err := e.StopExperiment(tickCtx, id, experiment.StopReasonEarlySignificance); err != nil {
						e.log.Error("early stop failed", zap.String("experiment_id", id), zap.Error(err))
					}
					return true
				}
				return false
			},
			func(completeCtx context.Context) {
				e.completeExperiment(completeCtx, id)
			},
		)
	}

	e.log.Info("rehydrated experiments",
		zap.Int("total", len(experiments)),
		zap.Int("running", len(running)),
	)
	return nil
}

func (e *Engine) snapshotExperiment(id string) (*experiment.Experiment, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	exp, ok := e.experiments[id]
	if !ok {
		return nil, ErrExperimentNotFound
	}
	cp := *exp
	return &cp, nil
}

// mustSnapshot is snapshotExperiment for callers that just verified
// existence; it returns an empty experiment on a lost race.
func (e *Engine) mustSnapshot(id string) *experiment.Experiment {
	exp, err := e.snapshotExperiment(id)
	if err != nil {
		return &experiment.Experiment{ID: id}
	}
	return exp
}

func copyAssignment(a *experiment.Assignment) *experiment.Assignment {
	cp := *a
	cp.Events = append([]experiment.Event(nil), a.Events...)
	return &cp
}
