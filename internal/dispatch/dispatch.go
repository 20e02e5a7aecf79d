// Package dispatch runs the multi-channel alert pipeline for an active SOS
// session: channel fan-out per contact, bounded retries with backoff,
// periodic location updates, and the delayed auto-call. Each
// (contact, channel) attempt is independent; one channel failing never
// blocks another.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/zoobzio/clockz"
	"golang.org/x/sync/errgroup"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
)

// SMSSender delivers a text message. Implemented by the platform SMS
// gateway collaborator.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, text string) error
}

// EmailSender delivers an email.
type EmailSender interface {
	SendEmail(ctx context.Context, address, text string) error
}

// Caller places a phone call.
type Caller interface {
	PlaceCall(ctx context.Context, phone string) error
}

// LocationReader refreshes the position fix for periodic updates.
type LocationReader interface {
	CurrentLocation() *model.Location
}

// AttemptSink receives every attempt outcome. Implemented by the state
// machine, which aggregates counters and persists attempts for audit.
type AttemptSink interface {
	RecordAttempt(a model.AlertAttempt)
}

// Config holds the pipeline tunables.
type Config struct {
	Template               string
	PersonalInfo           string
	MaxSendAttempts        int
	RetryBackoff           time.Duration
	AutoCall               bool
	AutoCallDelay          time.Duration
	EmergencyNumber        string
	LocationUpdates        bool
	LocationUpdateInterval time.Duration
	MaxLocationUpdates     int
}

// Dispatcher is the alert pipeline. One Dispatch call runs per Active entry.
type Dispatcher struct {
	cfg      Config
	sms      SMSSender
	email    EmailSender
	caller   Caller
	location LocationReader
	sink     AttemptSink
	clock    clockz.Clock
}

func New(cfg Config, sms SMSSender, email EmailSender, caller Caller, location LocationReader, sink AttemptSink) *Dispatcher {
	if cfg.MaxSendAttempts < 1 {
		cfg.MaxSendAttempts = 1
	}
	return &Dispatcher{
		cfg:      cfg,
		sms:      sms,
		email:    email,
		caller:   caller,
		location: location,
		sink:     sink,
		clock:    clockz.RealClock,
	}
}

// WithClock replaces the clock, for tests.
func (d *Dispatcher) WithClock(c clockz.Clock) *Dispatcher {
	d.clock = c
	return d
}

// Dispatch notifies every eligible contact and keeps the periodic-update and
// auto-call loops running until they complete or ctx is cancelled. The
// primary contact goes first; fan-out to the rest is unordered.
func (d *Dispatcher) Dispatch(ctx context.Context, sess model.SOSSession, contacts []model.EmergencyContact) {
	if len(contacts) == 0 {
		// Not a crash condition: siren and auto-call may still help, but
		// there is nobody to message. Surfaced to the user as config debt.
		slog.Warn("dispatch: no emergency contacts configured", "session", sess.ID)
	}

	message := Render(d.cfg.Template, sess.LastKnownLocation, sess.BatteryAtTrigger, d.cfg.PersonalInfo, sess.StartedAt)
	slog.Info("dispatch starting", "session", sess.ID, "contacts", len(contacts))

	var primary *model.EmergencyContact
	var rest []model.EmergencyContact
	for i := range contacts {
		if contacts[i].IsPrimary && primary == nil {
			primary = &contacts[i]
		} else {
			rest = append(rest, contacts[i])
		}
	}
	if primary != nil {
		d.dispatchContact(ctx, sess, *primary, message)
	}

	var g errgroup.Group
	for _, c := range rest {
		contact := c
		g.Go(func() error {
			d.dispatchContact(ctx, sess, contact, message)
			return nil // one contact failing never fails the group
		})
	}
	g.Go(func() error {
		d.runAutoCall(ctx, sess, contacts)
		return nil
	})
	g.Go(func() error {
		d.runLocationUpdates(ctx, sess, contacts)
		return nil
	})
	_ = g.Wait()

	slog.Info("dispatch complete", "session", sess.ID)
}

// dispatchContact fans out over the contact's channels. Ineligible channels
// are recorded as Skipped so history shows why a contact was not reached a
// given way, distinct from delivery failures.
func (d *Dispatcher) dispatchContact(ctx context.Context, sess model.SOSSession, c model.EmergencyContact, message string) {
	switch {
	case !c.HasChannel(model.ChannelSMS):
		d.skip(sess, c, model.ChannelSMS, "channel disabled")
	case c.Phone == "":
		d.skip(sess, c, model.ChannelSMS, "no phone number")
	default:
		d.attemptWithRetry(ctx, sess, c.ID, model.ChannelSMS, func(ctx context.Context) error {
			return d.sms.SendSMS(ctx, c.Phone, message)
		})
	}

	switch {
	case !c.HasChannel(model.ChannelEmail):
		d.skip(sess, c, model.ChannelEmail, "channel disabled")
	case c.Email == "":
		d.skip(sess, c, model.ChannelEmail, "no email address")
	default:
		d.attemptWithRetry(ctx, sess, c.ID, model.ChannelEmail, func(ctx context.Context) error {
			return d.email.SendEmail(ctx, c.Email, message)
		})
	}

	switch {
	case !c.HasChannel(model.ChannelCall):
		d.skip(sess, c, model.ChannelCall, "channel disabled")
	case c.Phone == "":
		d.skip(sess, c, model.ChannelCall, "no phone number")
	case !d.cfg.AutoCall:
		d.skip(sess, c, model.ChannelCall, "auto-call disabled")
	}
	// Eligible calls are placed by runAutoCall after its delay.

	if c.HasChannel(model.ChannelLiveLocation) && c.Phone != "" {
		d.sink.RecordAttempt(model.AlertAttempt{
			SessionID: sess.ID,
			ContactID: c.ID,
			Channel:   model.ChannelLiveLocation,
			Attempt:   1,
			Outcome:   model.AttemptSent,
			Detail:    "periodic location updates enabled",
			Timestamp: d.clock.Now(),
		})
	} else {
		d.skip(sess, c, model.ChannelLiveLocation, "channel disabled")
	}
}

func (d *Dispatcher) skip(sess model.SOSSession, c model.EmergencyContact, ch model.Channel, reason string) {
	d.sink.RecordAttempt(model.AlertAttempt{
		SessionID: sess.ID,
		ContactID: c.ID,
		Channel:   ch,
		Attempt:   1,
		Outcome:   model.AttemptSkipped,
		Detail:    reason,
		Timestamp: d.clock.Now(),
	})
}

// attemptWithRetry runs one (contact, channel) delivery with bounded retries
// and exponential backoff. Attempts are ordered: retry N+1 starts only after
// N's outcome is recorded. Cancellation aborts retries not yet started; an
// attempt already in flight finishes normally and is still recorded.
func (d *Dispatcher) attemptWithRetry(ctx context.Context, sess model.SOSSession, contactID string, ch model.Channel, send func(context.Context) error) {
	delay := d.cfg.RetryBackoff
	for n := 1; n <= d.cfg.MaxSendAttempts; n++ {
		if ctx.Err() != nil {
			return
		}

		err := send(ctx)
		attempt := model.AlertAttempt{
			SessionID: sess.ID,
			ContactID: contactID,
			Channel:   ch,
			Attempt:   n,
			Outcome:   model.AttemptSent,
			Timestamp: d.clock.Now(),
		}
		if err != nil {
			attempt.Outcome = model.AttemptFailed
			attempt.Detail = err.Error()
			slog.Warn("delivery attempt failed", "session", sess.ID, "contact", contactID, "channel", ch, "attempt", n, "error", err)
		}
		d.sink.RecordAttempt(attempt)
		if err == nil {
			return
		}

		if n < d.cfg.MaxSendAttempts {
			select {
			case <-d.clock.After(delay):
				delay *= 2
			case <-ctx.Done():
				return
			}
		}
	}
	slog.Error("delivery exhausted retries", "session", sess.ID, "contact", contactID, "channel", ch, "attempts", d.cfg.MaxSendAttempts)
}

// runAutoCall places a single call after the configured delay. The target is
// the primary call-eligible contact, any call-eligible contact, or the
// regional emergency number as last resort.
func (d *Dispatcher) runAutoCall(ctx context.Context, sess model.SOSSession, contacts []model.EmergencyContact) {
	if !d.cfg.AutoCall || d.caller == nil {
		return
	}

	select {
	case <-d.clock.After(d.cfg.AutoCallDelay):
	case <-ctx.Done():
		return
	}

	target := d.cfg.EmergencyNumber
	contactID := ""
	for _, c := range contacts {
		if c.HasChannel(model.ChannelCall) && c.Phone != "" {
			if contactID == "" || c.IsPrimary {
				target = c.Phone
				contactID = c.ID
			}
			if c.IsPrimary {
				break
			}
		}
	}
	if target == "" {
		slog.Warn("auto-call skipped, no target number", "session", sess.ID)
		return
	}

	err := d.caller.PlaceCall(ctx, target)
	attempt := model.AlertAttempt{
		SessionID: sess.ID,
		ContactID: contactID,
		Channel:   model.ChannelCall,
		Attempt:   1,
		Outcome:   model.AttemptSent,
		Detail:    "auto-call " + target,
		Timestamp: d.clock.Now(),
	}
	if err != nil {
		attempt.Outcome = model.AttemptFailed
		attempt.Detail = err.Error()
		slog.Error("auto-call failed", "session", sess.ID, "number", target, "error", err)
	}
	d.sink.RecordAttempt(attempt)

	// Only one call is placed per session; the remaining call-eligible
	// contacts get an audit record saying why theirs never happened.
	for _, c := range contacts {
		if c.ID != contactID && c.HasChannel(model.ChannelCall) && c.Phone != "" {
			d.skip(sess, c, model.ChannelCall, "another contact was called")
		}
	}
}

// runLocationUpdates re-sends the alert SMS with a refreshed location on the
// configured interval, stopping after the maximum update count so an
// unattended session cannot drain the battery or run up SMS cost forever.
func (d *Dispatcher) runLocationUpdates(ctx context.Context, sess model.SOSSession, contacts []model.EmergencyContact) {
	if !d.cfg.LocationUpdates || d.cfg.MaxLocationUpdates <= 0 {
		return
	}

	var recipients []model.EmergencyContact
	for _, c := range contacts {
		if c.Phone == "" {
			continue
		}
		if c.HasChannel(model.ChannelSMS) || c.HasChannel(model.ChannelLiveLocation) {
			recipients = append(recipients, c)
		}
	}
	if len(recipients) == 0 {
		return
	}

	for i := 1; i <= d.cfg.MaxLocationUpdates; i++ {
		select {
		case <-d.clock.After(d.cfg.LocationUpdateInterval):
		case <-ctx.Done():
			return
		}

		loc := sess.LastKnownLocation
		if fresh := d.location.CurrentLocation(); fresh != nil {
			loc = fresh
		}
		message := Render(d.cfg.Template, loc, sess.BatteryAtTrigger, d.cfg.PersonalInfo, d.clock.Now())

		for _, c := range recipients {
			err := d.sms.SendSMS(ctx, c.Phone, message)
			attempt := model.AlertAttempt{
				SessionID: sess.ID,
				ContactID: c.ID,
				Channel:   model.ChannelSMS,
				Attempt:   1,
				Outcome:   model.AttemptSent,
				Detail:    "location update",
				Timestamp: d.clock.Now(),
			}
			if err != nil {
				attempt.Outcome = model.AttemptFailed
				attempt.Detail = "location update: " + err.Error()
			}
			d.sink.RecordAttempt(attempt)
		}
	}
	slog.Info("periodic location updates finished", "session", sess.ID, "updates", d.cfg.MaxLocationUpdates)
}
