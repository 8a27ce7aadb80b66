package callsession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"callpop/internal/correlate"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and fires any due timers synchronously.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

type endedCall struct {
	callID    uuid.UUID
	status    string
	endedAt   time.Time
	duration  int
	addressID *uuid.UUID
}

type sessionLedger struct {
	mu       sync.Mutex
	answered []uuid.UUID
	ended    []endedCall
	selected []uuid.UUID
	failNext error
}

func (l *sessionLedger) takeErr() error {
	err := l.failNext
	l.failNext = nil
	return err
}

func (l *sessionLedger) MarkAnswered(ctx context.Context, tenantID, callID uuid.UUID, answeredAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.takeErr(); err != nil {
		return err
	}
	l.answered = append(l.answered, callID)
	return nil
}

func (l *sessionLedger) MarkEnded(ctx context.Context, tenantID, callID uuid.UUID, status string, endedAt time.Time, durationSeconds int, addressID *uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.takeErr(); err != nil {
		return err
	}
	l.ended = append(l.ended, endedCall{callID: callID, status: status, endedAt: endedAt, duration: durationSeconds, addressID: addressID})
	return nil
}

func (l *sessionLedger) SetSelectedAddress(ctx context.Context, tenantID, callID uuid.UUID, addressID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.takeErr(); err != nil {
		return err
	}
	l.selected = append(l.selected, addressID)
	return nil
}

func newTestSession(t *testing.T) (*Session, *fakeClock, *sessionLedger, *[]Notice) {
	t.Helper()
	clock := newFakeClock()
	ledger := &sessionLedger{}
	var notices []Notice
	s := NewSession(uuid.New(), ledger, func(n Notice) { notices = append(notices, n) }, zerolog.Nop(), WithClock(clock))
	return s, clock, ledger, &notices
}

func testEvent() correlate.IncomingCallEvent {
	return correlate.IncomingCallEvent{
		CallLogID:    uuid.New(),
		CompanyID:    uuid.New(),
		CallerNumber: "+306912345678",
		Timestamp:    time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestOfferRejectsWhileBusy(t *testing.T) {
	s, _, _, _ := newTestSession(t)

	if got := s.Offer(testEvent()); got != OfferAccepted {
		t.Fatalf("first offer = %v, want accepted", got)
	}
	if got := s.Offer(testEvent()); got != OfferRejectedBusy {
		t.Fatalf("second offer = %v, want rejected", got)
	}
	if s.State() != StateRinging {
		t.Fatalf("state = %s after rejected offer, want ringing", s.State())
	}

	// Still busy after answering; only Dismiss frees the session.
	if err := s.Answer(context.Background()); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got := s.Offer(testEvent()); got != OfferRejectedBusy {
		t.Fatalf("offer while answered = %v, want rejected", got)
	}
}

func TestRingTimeoutMarksMissed(t *testing.T) {
	s, clock, ledger, notices := newTestSession(t)

	ev := testEvent()
	s.Offer(ev)
	clock.Advance(DefaultRingTimeout + time.Second)

	if s.State() != StateEnded {
		t.Fatalf("state = %s, want ended", s.State())
	}
	if len(ledger.ended) != 1 {
		t.Fatalf("ended entries = %d, want 1", len(ledger.ended))
	}
	if ledger.ended[0].status != "missed" || ledger.ended[0].callID != ev.CallLogID {
		t.Fatalf("unexpected ended entry %+v", ledger.ended[0])
	}
	if ledger.ended[0].duration != 0 {
		t.Fatalf("missed call duration = %d, want 0", ledger.ended[0].duration)
	}

	var missed bool
	for _, n := range *notices {
		if n.Kind == "call_missed" && n.CallLogID == ev.CallLogID {
			missed = true
		}
	}
	if !missed {
		t.Fatal("expected call_missed notice")
	}
}

func TestAnswerCancelsRingTimeout(t *testing.T) {
	s, clock, ledger, notices := newTestSession(t)

	s.Offer(testEvent())
	clock.Advance(10 * time.Second)
	if err := s.Answer(context.Background()); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	// Fast-forward well past the original deadline: no spurious missed.
	clock.Advance(5 * time.Minute)
	if s.State() != StateAnswered {
		t.Fatalf("state = %s, want answered", s.State())
	}
	if len(ledger.ended) != 0 {
		t.Fatalf("unexpected ended entries: %+v", ledger.ended)
	}
	if len(*notices) != 0 {
		t.Fatalf("unexpected notices: %+v", *notices)
	}
}

func TestDurationFromWallClock(t *testing.T) {
	s, clock, ledger, _ := newTestSession(t)

	s.Offer(testEvent())
	if err := s.Answer(context.Background()); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	clock.Advance(125 * time.Second)
	if got := s.ElapsedSeconds(); got != 125 {
		t.Fatalf("ElapsedSeconds = %d, want 125", got)
	}

	if err := s.End(context.Background()); err != nil {
		t.Fatalf("End: %v", err)
	}
	if len(ledger.ended) != 1 {
		t.Fatalf("ended entries = %d, want 1", len(ledger.ended))
	}
	if ledger.ended[0].status != "completed" {
		t.Fatalf("status = %s, want completed", ledger.ended[0].status)
	}
	if ledger.ended[0].duration != 125 {
		t.Fatalf("duration = %d, want 125", ledger.ended[0].duration)
	}
	if got := s.ElapsedSeconds(); got != 125 {
		t.Fatalf("ElapsedSeconds after end = %d, want 125", got)
	}
}

func TestDeclineMarksMissed(t *testing.T) {
	s, _, ledger, _ := newTestSession(t)

	ev := testEvent()
	s.Offer(ev)
	if err := s.Decline(context.Background()); err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if s.State() != StateEnded {
		t.Fatalf("state = %s, want ended", s.State())
	}
	if len(ledger.ended) != 1 || ledger.ended[0].status != "missed" {
		t.Fatalf("unexpected ended entries: %+v", ledger.ended)
	}

	if err := s.Dismiss(); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %s after dismiss, want idle", s.State())
	}
	if got := s.Offer(testEvent()); got != OfferAccepted {
		t.Fatalf("offer after dismiss = %v, want accepted", got)
	}
}

func TestPersistFailureKeepsLocalState(t *testing.T) {
	s, _, ledger, _ := newTestSession(t)

	s.Offer(testEvent())
	ledger.failNext = errors.New("connection refused")

	err := s.Answer(context.Background())
	var drift *DriftError
	if !errors.As(err, &drift) {
		t.Fatalf("Answer error = %v, want DriftError", err)
	}
	// The session carries on answered; the caller only gets a warning.
	if s.State() != StateAnswered {
		t.Fatalf("state = %s after drift, want answered", s.State())
	}
	if err := s.End(context.Background()); err != nil {
		t.Fatalf("End after drift: %v", err)
	}
}

func TestSelectAddressLastOneWins(t *testing.T) {
	s, _, ledger, _ := newTestSession(t)

	s.Offer(testEvent())
	first := uuid.New()
	second := uuid.New()

	if err := s.SelectAddress(context.Background(), first); err != nil {
		t.Fatalf("SelectAddress: %v", err)
	}
	if err := s.Answer(context.Background()); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if err := s.SelectAddress(context.Background(), second); err != nil {
		t.Fatalf("SelectAddress: %v", err)
	}
	if err := s.End(context.Background()); err != nil {
		t.Fatalf("End: %v", err)
	}

	if len(ledger.selected) != 2 {
		t.Fatalf("selections persisted = %d, want 2", len(ledger.selected))
	}
	if ledger.ended[0].addressID == nil || *ledger.ended[0].addressID != second {
		t.Fatalf("final address = %v, want %s", ledger.ended[0].addressID, second)
	}
}

func TestRetractCancelsRingingOffer(t *testing.T) {
	s, clock, ledger, notices := newTestSession(t)

	ev := testEvent()
	s.Offer(ev)

	if !s.Retract(ev.CallLogID) {
		t.Fatal("expected ringing offer to be retracted")
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %s after retract, want idle", s.State())
	}

	var taken bool
	for _, n := range *notices {
		if n.Kind == "call_taken" && n.CallLogID == ev.CallLogID {
			taken = true
		}
	}
	if !taken {
		t.Fatal("expected call_taken notice")
	}

	// The ring timer is cancelled: no missed write for a retracted call.
	clock.Advance(DefaultRingTimeout + time.Second)
	if len(ledger.ended) != 0 {
		t.Fatalf("unexpected ended entries after retract: %+v", ledger.ended)
	}

	// And the session is free for the next call.
	if got := s.Offer(testEvent()); got != OfferAccepted {
		t.Fatalf("offer after retract = %v, want accepted", got)
	}
}

func TestRetractIgnoresOtherStates(t *testing.T) {
	s, _, _, _ := newTestSession(t)

	if s.Retract(uuid.New()) {
		t.Fatal("retract on an idle session must be a no-op")
	}

	ev := testEvent()
	s.Offer(ev)
	if s.Retract(uuid.New()) {
		t.Fatal("retract with a different call id must be a no-op")
	}
	if s.State() != StateRinging {
		t.Fatalf("state = %s, want ringing", s.State())
	}

	if err := s.Answer(context.Background()); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if s.Retract(ev.CallLogID) {
		t.Fatal("retract after answer must be a no-op")
	}
}

func TestReleaseStopsRingTimer(t *testing.T) {
	s, clock, ledger, notices := newTestSession(t)

	s.Offer(testEvent())
	s.Release()

	// A released session's timer never fires and its notices are silenced.
	clock.Advance(DefaultRingTimeout + time.Second)
	if len(ledger.ended) != 0 {
		t.Fatalf("unexpected ended entries after release: %+v", ledger.ended)
	}
	if len(*notices) != 0 {
		t.Fatalf("unexpected notices after release: %+v", *notices)
	}
}

func TestInvalidTransitions(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	ctx := context.Background()

	if err := s.Answer(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Answer while idle = %v, want ErrInvalidTransition", err)
	}
	if err := s.End(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("End while idle = %v, want ErrInvalidTransition", err)
	}
	if err := s.Dismiss(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Dismiss while idle = %v, want ErrInvalidTransition", err)
	}

	s.Offer(testEvent())
	if err := s.End(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("End while ringing = %v, want ErrInvalidTransition", err)
	}
	if err := s.Answer(ctx); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if err := s.Decline(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Decline while answered = %v, want ErrInvalidTransition", err)
	}
	if err := s.SelectAddress(ctx, uuid.New()); err != nil {
		t.Fatalf("SelectAddress while answered: %v", err)
	}
	if err := s.End(ctx); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := s.SelectAddress(ctx, uuid.New()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("SelectAddress after end = %v, want ErrInvalidTransition", err)
	}
}
