package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crescendo-labs/crescendo/internal/experiment"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	s.Init("exp_1", []string{"control", "variant_a"})
	return s
}

func conversion(revenue float64) experiment.Event {
	return experiment.Event{
		Type:      experiment.EventConversion,
		Payload:   experiment.EventPayload{Revenue: revenue},
		Timestamp: time.Now(),
	}
}

func TestConversionRate_Exact(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 200; i++ {
		require.NoError(t, s.RecordParticipant("exp_1", "control"))
	}
	for i := 0; i < 40; i++ {
		require.NoError(t, s.RecordEvent("exp_1", "control", conversion(0)))
	}

	snap, _, ok := s.Snapshot("exp_1")
	require.True(t, ok)
	assert.Equal(t, 200, snap["control"].Participants)
	assert.Equal(t, 40, snap["control"].Conversions)
	assert.Equal(t, 0.2, snap["control"].ConversionRate)

	require.NoError(t, s.RecordEvent("exp_1", "control", conversion(0)))
	snap, _, _ = s.Snapshot("exp_1")
	assert.Equal(t, float64(41)/200, snap["control"].ConversionRate)
}

func TestRevenueAccumulates(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordParticipant("exp_1", "variant_a"))

	require.NoError(t, s.RecordEvent("exp_1", "variant_a", conversion(9.99)))
	require.NoError(t, s.RecordEvent("exp_1", "variant_a", conversion(20.01)))

	snap, _, _ := s.Snapshot("exp_1")
	assert.InDelta(t, 30.0, snap["variant_a"].Revenue, 1e-9)
}

func TestTimeOnPage_RunningMean(t *testing.T) {
	s := newTestStore(t)

	pageView := func(seconds float64) experiment.Event {
		return experiment.Event{
			Type:      experiment.EventPageView,
			Payload:   experiment.EventPayload{TimeOnPage: seconds},
			Timestamp: time.Now(),
		}
	}

	// One participant: mean equals the sample.
	require.NoError(t, s.RecordParticipant("exp_1", "control"))
	require.NoError(t, s.RecordEvent("exp_1", "control", pageView(30)))
	snap, _, _ := s.Snapshot("exp_1")
	assert.InDelta(t, 30, snap["control"].TimeOnPage, 1e-9)

	// Second participant, new sample: mean over the participant count.
	require.NoError(t, s.RecordParticipant("exp_1", "control"))
	require.NoError(t, s.RecordEvent("exp_1", "control", pageView(60)))
	snap, _, _ = s.Snapshot("exp_1")
	// (30*(2-1) + 60) / 2 = 45
	assert.InDelta(t, 45, snap["control"].TimeOnPage, 1e-9)

	// A second page view from the same participant pool is a fresh
	// sample against the participant denominator.
	require.NoError(t, s.RecordEvent("exp_1", "control", pageView(15)))
	snap, _, _ = s.Snapshot("exp_1")
	// (45*(2-1) + 15) / 2 = 30
	assert.InDelta(t, 30, snap["control"].TimeOnPage, 1e-9)
}

func TestBounceCount(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordParticipant("exp_1", "control"))
	require.NoError(t, s.RecordEvent("exp_1", "control", experiment.Event{
		Type:      experiment.EventBounce,
		Timestamp: time.Now(),
	}))

	snap, _, _ := s.Snapshot("exp_1")
	assert.Equal(t, 1, snap["control"].Bounces)
}

func TestUnknownExperiment(t *testing.T) {
	s := NewStore()
	assert.ErrorIs(t, s.RecordParticipant("nope", "control"), ErrUnknownExperiment)
	assert.ErrorIs(t, s.RecordEvent("nope", "control", conversion(0)), ErrUnknownExperiment)

	_, _, ok := s.Snapshot("nope")
	assert.False(t, ok)
	assert.Zero(t, s.TotalParticipants("nope"))
}

func TestUnknownVariation(t *testing.T) {
	s := newTestStore(t)
	assert.ErrorIs(t, s.RecordParticipant("exp_1", "variant_z"), ErrUnknownExperiment)
}

func TestSnapshot_IsCopy(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordParticipant("exp_1", "control"))

	snap, order, ok := s.Snapshot("exp_1")
	require.True(t, ok)
	assert.Equal(t, []string{"control", "variant_a"}, order)

	// Mutating the snapshot must not leak back into the store.
	vm := snap["control"]
	vm.Participants = 999
	snap["control"] = vm

	fresh, _, _ := s.Snapshot("exp_1")
	assert.Equal(t, 1, fresh["control"].Participants)
}

func TestConcurrentUpdates_NoLostCounts(t *testing.T) {
	s := newTestStore(t)

	const workers = 8
	const perWorker = 250

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_ = s.RecordParticipant("exp_1", "control")
				_ = s.RecordEvent("exp_1", "control", conversion(1))
			}
		}()
	}
	wg.Wait()

	snap, _, _ := s.Snapshot("exp_1")
	assert.Equal(t, workers*perWorker, snap["control"].Participants)
	assert.Equal(t, workers*perWorker, snap["control"].Conversions)
	assert.InDelta(t, float64(workers*perWorker), snap["control"].Revenue, 1e-9)
	assert.Equal(t, 1.0, snap["control"].ConversionRate)
}

func TestTimeline(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordParticipant("exp_1", "control"))

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for day := 0; day < 10; day++ {
		ev := conversion(0)
		ev.Timestamp = base.AddDate(0, 0, day)
		require.NoError(t, s.RecordEvent("exp_1", "control", ev))
	}

	all := s.Timeline("exp_1", 0)
	require.Len(t, all, 10)
	assert.Equal(t, "2026-08-01", all[0].Date)
	assert.Equal(t, 1, all[0].Conversions)

	recent := s.Timeline("exp_1", 7)
	require.Len(t, recent, 7)
	assert.Equal(t, "2026-08-04", recent[0].Date)
}

func TestTimeline_ParticipantsAcrossVariations(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordParticipant("exp_1", "control"))
	require.NoError(t, s.RecordParticipant("exp_1", "variant_a"))
	require.NoError(t, s.RecordEvent("exp_1", "control", conversion(0)))

	// Each day carries the experiment-wide participant total, not the
	// event's variation's count.
	daily := s.Timeline("exp_1", 0)
	require.Len(t, daily, 1)
	assert.Equal(t, 2, daily[0].Participants)
}
