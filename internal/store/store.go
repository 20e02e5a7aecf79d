package store

import (
	"context"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
)

// Store is the repository interface for emergency history. Terminal sessions
// and plans are append-only records; attempts are written as they complete,
// even when their session is already archived.
type Store interface {
	// AppendSession archives a terminal SOS session.
	AppendSession(ctx context.Context, s model.SOSSession) error
	// AppendJourney archives a terminal journey plan.
	AppendJourney(ctx context.Context, p model.JourneyPlan) error
	// AppendAttempt records one delivery attempt outcome.
	AppendAttempt(ctx context.Context, a model.AlertAttempt) error
	// RecentSessions returns up to limit sessions, newest first.
	RecentSessions(ctx context.Context, limit int) ([]model.SOSSession, error)
	// RecentJourneys returns up to limit plans, newest first.
	RecentJourneys(ctx context.Context, limit int) ([]model.JourneyPlan, error)
	// Migrate runs database migrations.
	Migrate(ctx context.Context) error
}
