package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
)

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	loc := &model.Location{Lat: 12.9716, Lon: 77.5946, Accuracy: 8}
	ts := time.Date(2025, 6, 1, 21, 30, 0, 0, time.UTC)

	out := Render("Help! {LOCATION} {MAPS_LINK} {BATTERY} {TIMESTAMP} {PERSONAL_INFO}", loc, 64, "blood group B+", ts)

	assert.Contains(t, out, "12.971600,77.594600 (±8m)")
	assert.Contains(t, out, "https://maps.google.com/?q=12.971600,77.594600")
	assert.Contains(t, out, "64%")
	assert.Contains(t, out, "2025-06-01T21:30:00Z")
	assert.Contains(t, out, "blood group B+")
}

func TestRenderOmitsUnavailableData(t *testing.T) {
	ts := time.Date(2025, 6, 1, 21, 30, 0, 0, time.UTC)

	out := Render("Help! {LOCATION} {MAPS_LINK} {BATTERY} {TIMESTAMP}", nil, -1, "", ts)

	assert.NotContains(t, out, "{")
	assert.NotContains(t, out, "  ")
	assert.Equal(t, "Help! 2025-06-01T21:30:00Z", out)
}

type fixedContacts struct{ list []model.EmergencyContact }

func (f fixedContacts) ListContacts() []model.EmergencyContact { return f.list }

func TestNotifyCompanion(t *testing.T) {
	plan := model.JourneyPlan{
		ID:              "j1",
		DestinationName: "Home",
		Destination:     &model.Location{Lat: 12.9716, Lon: 77.5946},
		ExpectedArrival: time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC),
	}

	t.Run("sends overdue text to the companion", func(t *testing.T) {
		gw := &fakeGateway{}
		n := NewCompanionNotifier(gw, fixedContacts{list: []model.EmergencyContact{
			{ID: "comp-1", Name: "Asha", Phone: "+911111111111"},
		}})

		err := n.NotifyCompanion(context.Background(), "comp-1", plan)
		require.NoError(t, err)
		require.Equal(t, []string{"+911111111111"}, gw.sms)
		assert.Contains(t, gw.texts[0], "Home")
		assert.Contains(t, gw.texts[0], "10:00PM")
		assert.Contains(t, gw.texts[0], "https://maps.google.com/?q=")
	})

	t.Run("unknown companion", func(t *testing.T) {
		n := NewCompanionNotifier(&fakeGateway{}, fixedContacts{})
		assert.Error(t, n.NotifyCompanion(context.Background(), "ghost", plan))
	})

	t.Run("companion without phone", func(t *testing.T) {
		n := NewCompanionNotifier(&fakeGateway{}, fixedContacts{list: []model.EmergencyContact{{ID: "comp-1"}}})
		assert.Error(t, n.NotifyCompanion(context.Background(), "comp-1", plan))
	})

	t.Run("gateway failure surfaces", func(t *testing.T) {
		gw := &fakeGateway{failures: map[string]int{"+911111111111": 1}}
		n := NewCompanionNotifier(gw, fixedContacts{list: []model.EmergencyContact{
			{ID: "comp-1", Phone: "+911111111111"},
		}})
		err := n.NotifyCompanion(context.Background(), "comp-1", plan)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "companion sms")
	})
}
