// Package metrics owns the per-experiment, per-variation counters. All
// mutation goes through Store, which serializes updates for a given
// experiment so concurrent events never lose an update on the derived
// conversion rate or the running time-on-page mean.
package metrics

import (
	"errors"
	"sync"

	"github.com/crescendo-labs/crescendo/internal/experiment"
)

// ErrUnknownExperiment is returned when counters are touched for an
// experiment that was never initialized. The engine initializes metrics
// on start, so seeing this indicates a caller bug.
var ErrUnknownExperiment = errors.New("metrics: unknown experiment")

// VariationMetrics are the accumulated counters for one variation.
// ConversionRate is derived (conversions/participants, 0 when empty)
// and TimeOnPage is a running per-participant mean.
type VariationMetrics struct {
	Participants   int     `json:"participants"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
	Bounces        int     `json:"bounces"`
	TimeOnPage     float64 `json:"time_on_page"`
	Revenue        float64 `json:"revenue"`
}

// DailyMetric aggregates event counts per calendar day (UTC).
type DailyMetric struct {
	Date         string `json:"date"`
	Events       int    `json:"events"`
	Conversions  int    `json:"conversions"`
	Participants int    `json:"participants"`
}

type experimentMetrics struct {
	mu         sync.Mutex
	order      []string
	variations map[string]*VariationMetrics
	daily      []DailyMetric
}

// Store holds counters for all tracked experiments. The outer map is
// guarded by an RWMutex; each experiment carries its own mutex so
// updates to different experiments proceed fully in parallel.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*experimentMetrics
}

func NewStore() *Store {
	return &Store{byID: make(map[string]*experimentMetrics)}
}

// Init registers an experiment and zeroes counters for its variations,
// preserving declaration order for snapshots. Re-initializing an
// existing experiment resets it.
func (s *Store) Init(experimentID string, variationIDs []string) {
	em := &experimentMetrics{
		order:      append([]string(nil), variationIDs...),
		variations: make(map[string]*VariationMetrics, len(variationIDs)),
	}
	for _, id := range variationIDs {
		em.variations[id] = &VariationMetrics{}
	}

	s.mu.Lock()
	s.byID[experimentID] = em
	s.mu.Unlock()
}

// Drop forgets an experiment's counters.
func (s *Store) Drop(experimentID string) {
	s.mu.Lock()
	delete(s.byID, experimentID)
	s.mu.Unlock()
}

func (s *Store) get(experimentID string) (*experimentMetrics, bool) {
	s.mu.RLock()
	em, ok := s.byID[experimentID]
	s.mu.RUnlock()
	return em, ok
}

// RecordParticipant increments the participant counter for a
// variation. Called exactly once per (experiment, user) pair; the
// engine's idempotent assignment guarantees that.
func (s *Store) RecordParticipant(experimentID, variationID string) error {
	em, ok := s.get(experimentID)
	if !ok {
		return ErrUnknownExperiment
	}

	em.mu.Lock()
	defer em.mu.Unlock()

	vm, ok := em.variations[variationID]
	if !ok {
		return ErrUnknownExperiment
	}
	vm.Participants++
	if vm.Participants > 0 {
		vm.ConversionRate = float64(vm.Conversions) / float64(vm.Participants)
	}
	return nil
}

// RecordEvent applies one tracked event to a variation's counters. A
// conversion bumps the conversion count, recomputes the rate and
// accumulates revenue. A page view with a time-on-page sample updates
// the running mean against the current participant count, so multiple
// page views per participant each count as a fresh sample. Custom
// event types only touch the daily timeline.
func (s *Store) RecordEvent(experimentID, variationID string, ev experiment.Event) error {
	em, ok := s.get(experimentID)
	if !ok {
		return ErrUnknownExperiment
	}

	em.mu.Lock()
	defer em.mu.Unlock()

	vm, ok := em.variations[variationID]
	if !ok {
		return ErrUnknownExperiment
	}

	switch ev.Type {
	case experiment.EventConversion:
		vm.Conversions++
		if vm.Participants > 0 {
			vm.ConversionRate = float64(vm.Conversions) / float64(vm.Participants)
		}
		vm.Revenue += ev.Payload.Revenue

	case experiment.EventBounce:
		vm.Bounces++

	case experiment.EventPageView:
		if ev.Payload.TimeOnPage > 0 && vm.Participants > 0 {
			n := float64(vm.Participants)
			vm.TimeOnPage = (vm.TimeOnPage*(n-1) + ev.Payload.TimeOnPage) / n
		}
	}

	em.recordDaily(ev)
	return nil
}

func (em *experimentMetrics) recordDaily(ev experiment.Event) {
	day := ev.Timestamp.UTC().Format("2006-01-02")

	var total int
	for _, vm := range em.variations {
		total += vm.Participants
	}

	for i := range em.daily {
		if em.daily[i].Date == day {
			em.daily[i].Events++
			if ev.Type == experiment.EventConversion {
				em.daily[i].Conversions++
			}
			em.daily[i].Participants = total
			return
		}
	}

	dm := DailyMetric{Date: day, Events: 1, Participants: total}
	if ev.Type == experiment.EventConversion {
		dm.Conversions = 1
	}
	em.daily = append(em.daily, dm)
}

// Snapshot returns a copy of the current counters keyed by variation
// id, plus the variation order. The inference engine works only on
// snapshots, never on live counters.
func (s *Store) Snapshot(experimentID string) (map[string]VariationMetrics, []string, bool) {
	em, ok := s.get(experimentID)
	if !ok {
		return nil, nil, false
	}

	em.mu.Lock()
	defer em.mu.Unlock()

	out := make(map[string]VariationMetrics, len(em.variations))
	for id, vm := range em.variations {
		out[id] = *vm
	}
	order := append([]string(nil), em.order...)
	return out, order, true
}

// Timeline returns the daily aggregates, all of them or just the most
// recent `last` days when last > 0.
func (s *Store) Timeline(experimentID string, last int) []DailyMetric {
	em, ok := s.get(experimentID)
	if !ok {
		return nil
	}

	em.mu.Lock()
	defer em.mu.Unlock()

	daily := append([]DailyMetric(nil), em.daily...)
	if last > 0 && len(daily) > last {
		daily = daily[len(daily)-last:]
	}
	return daily
}

// TotalParticipants sums participants across variations.
func (s *Store) TotalParticipants(experimentID string) int {
	em, ok := s.get(experimentID)
	if !ok {
		return 0
	}

	em.mu.Lock()
	defer em.mu.Unlock()

	var total int
	for _, vm := range em.variations {
		total += vm.Participants
	}
	return total
}
