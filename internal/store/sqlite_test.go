package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crescendo-labs/crescendo/internal/experiment"
)

func setupSQLite(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleExperiment(id string) *experiment.Experiment {
	now := time.Now().Truncate(time.Second)
	exp := &experiment.Experiment{
		ID:   id,
		Name: "Landing page test",
		Variations: []experiment.Variation{
			{ID: "control", Name: "Control"},
			{ID: "variant_a", Name: "Variant A"},
		},
		TrafficSplit: map[string]float64{"control": 50, "variant_a": 50},
		Status:       experiment.StatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	exp.ApplyDefaults()
	return exp
}

func TestExperimentRoundTrip(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	exp := sampleExperiment("exp_1")
	require.NoError(t, s.SaveExperiment(ctx, exp))

	got, err := s.GetExperiment(ctx, "exp_1")
	require.NoError(t, err)
	assert.Equal(t, exp.Name, got.Name)
	assert.Equal(t, exp.TrafficSplit, got.TrafficSplit)
	assert.Equal(t, experiment.StatusDraft, got.Status)
	assert.Len(t, got.Variations, 2)
}

func TestExperimentUpsert(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	exp := sampleExperiment("exp_1")
	require.NoError(t, s.SaveExperiment(ctx, exp))

	exp.Status = experiment.StatusRunning
	exp.StartedAt = time.Now()
	require.NoError(t, s.SaveExperiment(ctx, exp))

	got, err := s.GetExperiment(ctx, "exp_1")
	require.NoError(t, err)
	assert.Equal(t, experiment.StatusRunning, got.Status)

	all, err := s.ListExperiments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetExperiment_NotFound(t *testing.T) {
	s := setupSQLite(t)

	_, err := s.GetExperiment(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssignmentRoundTrip(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SaveExperiment(ctx, sampleExperiment("exp_1")))

	a := &experiment.Assignment{
		UserID:       "user-1",
		ExperimentID: "exp_1",
		VariationID:  "variant_a",
		AssignedAt:   time.Now(),
		Attributes:   experiment.UserAttributes{Device: "mobile", Country: "US"},
	}
	require.NoError(t, s.SaveAssignment(ctx, a))

	// Re-saving the same pair keeps the original record.
	dup := *a
	dup.VariationID = "control"
	require.NoError(t, s.SaveAssignment(ctx, &dup))

	assignments, err := s.ListAssignments(ctx, "exp_1")
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, "variant_a", assignments[0].VariationID)
	assert.Equal(t, "mobile", assignments[0].Attributes.Device)
}

func TestEventReplayOrder(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SaveExperiment(ctx, sampleExperiment("exp_1")))

	for i, typ := range []string{experiment.EventPageView, experiment.EventConversion, experiment.EventBounce} {
		ev := experiment.Event{
			Type:        typ,
			VariationID: "control",
			Timestamp:   time.Now().Add(time.Duration(i) * time.Millisecond),
			Payload:     experiment.EventPayload{Revenue: float64(i)},
		}
		require.NoError(t, s.AppendEvent(ctx, "exp_1", "user-1", ev))
	}

	events, err := s.ListEvents(ctx, "exp_1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, experiment.EventPageView, events[0].Event.Type)
	assert.Equal(t, experiment.EventConversion, events[1].Event.Type)
	assert.Equal(t, experiment.EventBounce, events[2].Event.Type)
	assert.Equal(t, "user-1", events[0].UserID)
	assert.Equal(t, 1.0, events[1].Event.Payload.Revenue)
}
