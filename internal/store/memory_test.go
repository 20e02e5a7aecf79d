package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
)

func TestMemoryRecentSessionsNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, m.AppendSession(ctx, model.SOSSession{ID: fmt.Sprintf("s%d", i)}))
	}

	sessions, err := m.RecentSessions(ctx, 3)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "s4", sessions[0].ID)
	assert.Equal(t, "s2", sessions[2].ID)

	// Zero or oversized limits return everything.
	all, err := m.RecentSessions(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	all, err = m.RecentSessions(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestMemoryRecentJourneys(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.AppendJourney(ctx, model.JourneyPlan{ID: "j1", Status: model.JourneyConfirmed}))
	require.NoError(t, m.AppendJourney(ctx, model.JourneyPlan{ID: "j2", Status: model.JourneyCancelled}))

	journeys, err := m.RecentJourneys(ctx, 10)
	require.NoError(t, err)
	require.Len(t, journeys, 2)
	assert.Equal(t, "j2", journeys[0].ID)
}

func TestMemoryAttemptsFilterBySession(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.AppendAttempt(ctx, model.AlertAttempt{SessionID: "a", Channel: model.ChannelSMS}))
	require.NoError(t, m.AppendAttempt(ctx, model.AlertAttempt{SessionID: "b", Channel: model.ChannelEmail}))
	require.NoError(t, m.AppendAttempt(ctx, model.AlertAttempt{SessionID: "a", Channel: model.ChannelCall}))

	assert.Len(t, m.Attempts("a"), 2)
	assert.Len(t, m.Attempts("b"), 1)
	assert.Len(t, m.Attempts(""), 3)
	assert.Empty(t, m.Attempts("missing"))
}

func TestMemoryMigrateIsNoOp(t *testing.T) {
	assert.NoError(t, NewMemory().Migrate(context.Background()))
}
