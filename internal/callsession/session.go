// Package callsession owns the lifecycle of the call currently displayed to
// one connected agent: Idle -> Ringing -> Answered -> Ended. One Session
// exists per live connection and holds at most one call at a time; a second
// incoming event while a call is active is rejected, never queued.
//
// Durations are recomputed from the answered-at wall clock rather than
// counted in ticks, so they survive tab throttling and delayed timers.
package callsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"callpop/internal/correlate"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Session states.
type State string

const (
	StateIdle     State = "idle"
	StateRinging  State = "ringing"
	StateAnswered State = "answered"
	StateEnded    State = "ended"
)

// DefaultRingTimeout is how long a call may ring before it is marked missed.
const DefaultRingTimeout = 30 * time.Second

// ErrInvalidTransition is returned when an agent action does not apply to
// the current state (e.g. answering a call that is not ringing).
var ErrInvalidTransition = errors.New("invalid call state transition")

// DriftError reports that a transition was applied locally but the ledger
// write failed. Local state stays transitioned; callers surface the error as
// a non-blocking warning. This is a deliberate trade-off: for the remainder
// of the session, local state is the source of truth.
type DriftError struct {
	Err error
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("call state persisted locally but ledger update failed: %v", e.Err)
}

func (e *DriftError) Unwrap() error { return e.Err }

// OfferOutcome is the result of offering an incoming call to a session.
type OfferOutcome int

const (
	OfferAccepted OfferOutcome = iota
	OfferRejectedBusy
)

// Ledger persists call state transitions.
type Ledger interface {
	MarkAnswered(ctx context.Context, tenantID, callID uuid.UUID, answeredAt time.Time) error
	MarkEnded(ctx context.Context, tenantID, callID uuid.UUID, status string, endedAt time.Time, durationSeconds int, addressID *uuid.UUID) error
	SetSelectedAddress(ctx context.Context, tenantID, callID uuid.UUID, addressID uuid.UUID) error
}

// Notice is an asynchronous session event (ring timeout, persistence
// warning). The transport layer decides how to present it.
type Notice struct {
	Kind      string    `json:"kind"` // call_missed, persist_failed
	CallLogID uuid.UUID `json:"call_log_id"`
	Message   string    `json:"message"`
}

// Session is the state machine for one agent's live call.
type Session struct {
	mu sync.Mutex

	tenantID    uuid.UUID
	state       State
	call        *correlate.IncomingCallEvent
	answeredAt  time.Time
	endedAt     time.Time
	finalStatus string
	selected    *uuid.UUID
	ringTimer   Timer

	ledger      Ledger
	clock       Clock
	notify      func(Notice)
	logger      zerolog.Logger
	ringTimeout time.Duration
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithRingTimeout overrides the missed-call timeout.
func WithRingTimeout(d time.Duration) Option {
	return func(s *Session) { s.ringTimeout = d }
}

// NewSession creates an idle session for one connection. notify receives
// asynchronous notices and may be nil.
func NewSession(tenantID uuid.UUID, ledger Ledger, notify func(Notice), logger zerolog.Logger, opts ...Option) *Session {
	s := &Session{
		tenantID:    tenantID,
		state:       StateIdle,
		ledger:      ledger,
		clock:       RealClock(),
		notify:      notify,
		logger:      logger.With().Str("component", "callsession").Logger(),
		ringTimeout: DefaultRingTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the event of the active call, or nil when idle.
func (s *Session) Current() *correlate.IncomingCallEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.call
}

// SelectedAddress returns the currently selected address id, if any.
func (s *Session) SelectedAddress() *uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Offer presents an incoming call to the session. A session that is not
// idle rejects the call without disturbing the current one; the single
// deferred ring timer is armed only on acceptance.
func (s *Session) Offer(event correlate.IncomingCallEvent) OfferOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		s.logger.Info().
			Str("call_log_id", event.CallLogID.String()).
			Str("state", string(s.state)).
			Msg("incoming call rejected, session busy")
		return OfferRejectedBusy
	}

	ev := event
	s.state = StateRinging
	s.call = &ev
	s.selected = nil
	s.finalStatus = ""

	callID := ev.CallLogID
	s.ringTimer = s.clock.AfterFunc(s.ringTimeout, func() {
		s.onRingTimeout(callID)
	})

	return OfferAccepted
}

// Answer transitions Ringing -> Answered and records the answered-at
// timestamp the duration is later computed from.
func (s *Session) Answer(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRinging {
		s.mu.Unlock()
		return ErrInvalidTransition
	}

	s.stopRingTimerLocked()
	s.answeredAt = s.clock.Now()
	s.state = StateAnswered
	tenantID, callID, answeredAt := s.tenantID, s.call.CallLogID, s.answeredAt
	s.mu.Unlock()

	if err := s.ledger.MarkAnswered(ctx, tenantID, callID, answeredAt); err != nil {
		s.logger.Error().Err(err).Str("call_log_id", callID.String()).Msg("failed to persist answered transition")
		return &DriftError{Err: err}
	}
	return nil
}

// Decline transitions Ringing -> Ended as missed.
func (s *Session) Decline(ctx context.Context) error {
	return s.endRinging(ctx, "decline")
}

// End transitions Answered -> Ended as completed, persisting the final
// duration and the last selected address.
func (s *Session) End(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateAnswered {
		s.mu.Unlock()
		return ErrInvalidTransition
	}

	s.endedAt = s.clock.Now()
	s.finalStatus = "completed"
	s.state = StateEnded
	duration := int(s.endedAt.Sub(s.answeredAt).Round(time.Second).Seconds())
	tenantID, callID, endedAt, selected := s.tenantID, s.call.CallLogID, s.endedAt, s.selected
	s.mu.Unlock()

	if err := s.ledger.MarkEnded(ctx, tenantID, callID, "completed", endedAt, duration, selected); err != nil {
		s.logger.Error().Err(err).Str("call_log_id", callID.String()).Msg("failed to persist completed transition")
		return &DriftError{Err: err}
	}
	return nil
}

// SelectAddress records the agent's address choice. Allowed while the call
// is ringing or answered; the selection is persisted immediately and the
// last one before Ended is retained on the call log.
func (s *Session) SelectAddress(ctx context.Context, addressID uuid.UUID) error {
	s.mu.Lock()
	if s.state != StateRinging && s.state != StateAnswered {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	s.selected = &addressID
	tenantID, callID := s.tenantID, s.call.CallLogID
	s.mu.Unlock()

	if err := s.ledger.SetSelectedAddress(ctx, tenantID, callID, addressID); err != nil {
		s.logger.Error().Err(err).Str("call_log_id", callID.String()).Msg("failed to persist address selection")
		return &DriftError{Err: err}
	}
	return nil
}

// Retract withdraws a ringing offer after another agent answered the call.
// Only a session still ringing on that exact call is affected: it returns to
// idle with its ring timer cancelled, and the agent is notified. Reports
// whether an offer was withdrawn.
func (s *Session) Retract(callID uuid.UUID) bool {
	s.mu.Lock()
	if s.state != StateRinging || s.call == nil || s.call.CallLogID != callID {
		s.mu.Unlock()
		return false
	}
	s.stopRingTimerLocked()
	s.state = StateIdle
	s.call = nil
	s.selected = nil
	s.mu.Unlock()

	s.emit(Notice{Kind: "call_taken", CallLogID: callID, Message: "call was answered by another agent"})
	return true
}

// Release shuts the session down when its connection goes away. The ring
// timer is stopped so it cannot fire into a dead connection, and further
// notices are silenced.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopRingTimerLocked()
	s.notify = nil
}

// Dismiss clears an ended call summary and returns the session to Idle.
func (s *Session) Dismiss() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEnded {
		return ErrInvalidTransition
	}
	s.state = StateIdle
	s.call = nil
	s.selected = nil
	s.answeredAt = time.Time{}
	s.endedAt = time.Time{}
	s.finalStatus = ""
	return nil
}

// ElapsedSeconds returns the answered call's elapsed time, recomputed from
// the answered-at wall clock.
func (s *Session) ElapsedSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateAnswered:
		return int(s.clock.Now().Sub(s.answeredAt).Round(time.Second).Seconds())
	case StateEnded:
		if s.finalStatus == "completed" {
			return int(s.endedAt.Sub(s.answeredAt).Round(time.Second).Seconds())
		}
	}
	return 0
}

func (s *Session) endRinging(ctx context.Context, reason string) error {
	s.mu.Lock()
	if s.state != StateRinging {
		s.mu.Unlock()
		return ErrInvalidTransition
	}

	s.stopRingTimerLocked()
	s.endedAt = s.clock.Now()
	s.finalStatus = "missed"
	s.state = StateEnded
	tenantID, callID, endedAt, selected := s.tenantID, s.call.CallLogID, s.endedAt, s.selected
	s.mu.Unlock()

	s.logger.Info().Str("call_log_id", callID.String()).Str("reason", reason).Msg("call missed")

	if err := s.ledger.MarkEnded(ctx, tenantID, callID, "missed", endedAt, 0, selected); err != nil {
		s.logger.Error().Err(err).Str("call_log_id", callID.String()).Msg("failed to persist missed transition")
		return &DriftError{Err: err}
	}
	return nil
}

// onRingTimeout fires from the deferred timer. The state and call id are
// re-checked under the lock: a timer that lost the race against Answer or
// Decline must not produce a late missed transition.
func (s *Session) onRingTimeout(callID uuid.UUID) {
	s.mu.Lock()
	if s.state != StateRinging || s.call == nil || s.call.CallLogID != callID {
		s.mu.Unlock()
		return
	}

	s.endedAt = s.clock.Now()
	s.finalStatus = "missed"
	s.state = StateEnded
	tenantID, endedAt, selected := s.tenantID, s.endedAt, s.selected
	s.mu.Unlock()

	if err := s.ledger.MarkEnded(context.Background(), tenantID, callID, "missed", endedAt, 0, selected); err != nil {
		s.logger.Error().Err(err).Str("call_log_id", callID.String()).Msg("failed to persist ring timeout")
		s.emit(Notice{Kind: "persist_failed", CallLogID: callID, Message: "missed call could not be saved"})
	}

	s.emit(Notice{Kind: "call_missed", CallLogID: callID, Message: "call was not answered in time"})
}

func (s *Session) stopRingTimerLocked() {
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
}

// emit reads notify under the lock so Release can silence a session whose
// timer is in flight, but calls it outside the lock.
func (s *Session) emit(n Notice) {
	s.mu.Lock()
	notify := s.notify
	s.mu.Unlock()
	if notify != nil {
		notify(n)
	}
}
