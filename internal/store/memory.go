package store

import (
	"context"
	"sync"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
)

// Memory is an in-process Store for tests and no-database development runs.
type Memory struct {
	mu       sync.Mutex
	sessions []model.SOSSession
	journeys []model.JourneyPlan
	attempts []model.AlertAttempt
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Migrate(ctx context.Context) error { return nil }

func (m *Memory) AppendSession(ctx context.Context, s model.SOSSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, s)
	return nil
}

func (m *Memory) AppendJourney(ctx context.Context, p model.JourneyPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journeys = append(m.journeys, p)
	return nil
}

func (m *Memory) AppendAttempt(ctx context.Context, a model.AlertAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *Memory) RecentSessions(ctx context.Context, limit int) ([]model.SOSSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lastN(m.sessions, limit), nil
}

func (m *Memory) RecentJourneys(ctx context.Context, limit int) ([]model.JourneyPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lastN(m.journeys, limit), nil
}

// Attempts returns all recorded attempts, oldest first.
func (m *Memory) Attempts(sessionID string) []model.AlertAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AlertAttempt
	for _, a := range m.attempts {
		if sessionID == "" || a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out
}

// lastN returns up to n items newest first.
func lastN[T any](items []T, n int) []T {
	if n <= 0 || n > len(items) {
		n = len(items)
	}
	out := make([]T, 0, n)
	for i := len(items) - 1; i >= len(items)-n; i-- {
		out = append(out, items[i])
	}
	return out
}
