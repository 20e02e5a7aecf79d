package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
)

// ContactLookup resolves a companion contact ID against the contact store
// snapshot.
type ContactLookup interface {
	ListContacts() []model.EmergencyContact
}

// CompanionNotifier sends the companion-only overdue alert for journeys
// without auto-SOS consent. It reuses the SMS gateway but is independent of
// any SOS session.
type CompanionNotifier struct {
	sms      SMSSender
	contacts ContactLookup
}

func NewCompanionNotifier(sms SMSSender, contacts ContactLookup) *CompanionNotifier {
	return &CompanionNotifier{sms: sms, contacts: contacts}
}

// NotifyCompanion texts the companion that the plan is overdue.
func (n *CompanionNotifier) NotifyCompanion(ctx context.Context, contactID string, plan model.JourneyPlan) error {
	var companion *model.EmergencyContact
	for _, c := range n.contacts.ListContacts() {
		if c.ID == contactID {
			companion = &c
			break
		}
	}
	if companion == nil {
		return fmt.Errorf("companion contact %q not found", contactID)
	}
	if companion.Phone == "" {
		return fmt.Errorf("companion contact %q has no phone number", contactID)
	}

	message := fmt.Sprintf(
		"Safety check: expected arrival at %s by %s has not been confirmed. Please check in with them.",
		plan.DestinationName,
		plan.ExpectedArrival.Format(time.Kitchen),
	)
	if plan.Destination != nil {
		message += " Destination: " + plan.Destination.MapsLink()
	}

	if err := n.sms.SendSMS(ctx, companion.Phone, message); err != nil {
		return fmt.Errorf("companion sms: %w", err)
	}
	return nil
}
