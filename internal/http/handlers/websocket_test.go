package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"callpop/internal/callsession"
	"callpop/internal/correlate"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type nopLedger struct{}

func (nopLedger) MarkAnswered(ctx context.Context, tenantID, callID uuid.UUID, answeredAt time.Time) error {
	return nil
}

func (nopLedger) MarkEnded(ctx context.Context, tenantID, callID uuid.UUID, status string, endedAt time.Time, durationSeconds int, addressID *uuid.UUID) error {
	return nil
}

func (nopLedger) SetSelectedAddress(ctx context.Context, tenantID, callID uuid.UUID, addressID uuid.UUID) error {
	return nil
}

// recordingLedger tracks terminal transitions by status.
type recordingLedger struct {
	mu    sync.Mutex
	ended []string
}

func (l *recordingLedger) MarkAnswered(ctx context.Context, tenantID, callID uuid.UUID, answeredAt time.Time) error {
	return nil
}

func (l *recordingLedger) MarkEnded(ctx context.Context, tenantID, callID uuid.UUID, status string, endedAt time.Time, durationSeconds int, addressID *uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ended = append(l.ended, status)
	return nil
}

func (l *recordingLedger) SetSelectedAddress(ctx context.Context, tenantID, callID uuid.UUID, addressID uuid.UUID) error {
	return nil
}

func (l *recordingLedger) endedStatuses() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ended...)
}

func newHubClient(t *testing.T, hub *WebSocketHub, tenantID uuid.UUID, ledger callsession.Ledger, opts ...callsession.Option) *WebSocketClient {
	t.Helper()
	client := &WebSocketClient{
		tenantID: tenantID,
		send:     make(chan WebSocketMessage, 16),
		hub:      hub,
	}
	// Session notices reach the browser through the client, as in readPump.
	client.session = callsession.NewSession(tenantID, ledger, client.notify, zerolog.Nop(), opts...)
	hub.register <- client
	if msg := recvMessage(t, client); msg.Type != "joined" {
		t.Fatalf("first message type = %q, want joined", msg.Type)
	}
	return client
}

func recvMessage(t *testing.T, client *WebSocketClient) WebSocketMessage {
	t.Helper()
	select {
	case msg := <-client.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return WebSocketMessage{}
	}
}

func event(tenantID uuid.UUID) correlate.IncomingCallEvent {
	return correlate.IncomingCallEvent{
		CallLogID:    uuid.New(),
		CompanyID:    tenantID,
		CallerNumber: "+306912345678",
		Timestamp:    time.Now(),
	}
}

func TestPublishIsScopedToTenant(t *testing.T) {
	hub := NewWebSocketHub(zerolog.Nop())
	hub.Start()
	defer hub.Stop()

	tenantA := uuid.New()
	tenantB := uuid.New()
	a1 := newHubClient(t, hub, tenantA, nopLedger{})
	a2 := newHubClient(t, hub, tenantA, nopLedger{})
	b := newHubClient(t, hub, tenantB, nopLedger{})

	hub.PublishIncomingCall(tenantA, event(tenantA))

	for _, client := range []*WebSocketClient{a1, a2} {
		msg := recvMessage(t, client)
		if msg.Type != "incoming-call" {
			t.Fatalf("tenant A message type = %q, want incoming-call", msg.Type)
		}
		if msg.TenantID != tenantA.String() {
			t.Fatalf("message tenant = %q, want %q", msg.TenantID, tenantA)
		}
	}

	select {
	case msg := <-b.send:
		t.Fatalf("tenant B received unexpected message %q", msg.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishPreservesOrder(t *testing.T) {
	hub := NewWebSocketHub(zerolog.Nop())
	hub.Start()
	defer hub.Stop()

	tenantID := uuid.New()
	client := newHubClient(t, hub, tenantID, nopLedger{})

	first := event(tenantID)
	second := event(tenantID)
	hub.PublishIncomingCall(tenantID, first)
	hub.PublishIncomingCall(tenantID, second)

	msg1 := recvMessage(t, client)
	msg2 := recvMessage(t, client)
	ev1 := msg1.Data.(correlate.IncomingCallEvent)
	if msg1.Type != "incoming-call" || ev1.CallLogID != first.CallLogID {
		t.Fatalf("first delivery = %q %v, want incoming-call %s", msg1.Type, msg1.Data, first.CallLogID)
	}
	// The session is ringing, so the second call is blocked but still
	// delivered as a notice, in publish order.
	if msg2.Type != "call_blocked" {
		t.Fatalf("second delivery type = %q, want call_blocked", msg2.Type)
	}
}

func TestBusySessionGetsBlockedNotice(t *testing.T) {
	hub := NewWebSocketHub(zerolog.Nop())
	hub.Start()
	defer hub.Stop()

	tenantID := uuid.New()
	busy := newHubClient(t, hub, tenantID, nopLedger{})
	free := newHubClient(t, hub, tenantID, nopLedger{})

	busy.session.Offer(event(tenantID))

	hub.PublishIncomingCall(tenantID, event(tenantID))

	if msg := recvMessage(t, busy); msg.Type != "call_blocked" {
		t.Fatalf("busy client message = %q, want call_blocked", msg.Type)
	}
	if msg := recvMessage(t, free); msg.Type != "incoming-call" {
		t.Fatalf("free client message = %q, want incoming-call", msg.Type)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	hub := NewWebSocketHub(zerolog.Nop())
	hub.Start()
	defer hub.Stop()

	tenantID := uuid.New()
	client := newHubClient(t, hub, tenantID, nopLedger{})

	hub.unregister <- client
	hub.unregister <- client // second leave must not panic on a closed channel

	deadline := time.After(time.Second)
	for hub.ConnectedClients() != 0 {
		select {
		case <-deadline:
			t.Fatal("client was not removed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	hub.PublishIncomingCall(tenantID, event(tenantID))
}

func TestPublishPrunesUnresponsiveClients(t *testing.T) {
	hub := NewWebSocketHub(zerolog.Nop())
	hub.Start()
	defer hub.Stop()

	tenantID := uuid.New()
	stuck := &WebSocketClient{
		tenantID: tenantID,
		send:     make(chan WebSocketMessage), // unbuffered, nobody reading
		session:  callsession.NewSession(tenantID, nopLedger{}, nil, zerolog.Nop()),
		hub:      hub,
	}
	hub.mu.Lock()
	hub.clients[stuck] = true
	hub.mu.Unlock()

	hub.PublishIncomingCall(tenantID, event(tenantID))

	if got := hub.ConnectedClients(); got != 0 {
		t.Fatalf("connected clients = %d, want 0 after prune", got)
	}
}

func TestDropWhileRingingStopsSessionTimer(t *testing.T) {
	hub := NewWebSocketHub(zerolog.Nop())
	hub.Start()
	defer hub.Stop()

	tenantID := uuid.New()
	ledger := &recordingLedger{}
	client := newHubClient(t, hub, tenantID, ledger, callsession.WithRingTimeout(250*time.Millisecond))

	hub.PublishIncomingCall(tenantID, event(tenantID))
	if msg := recvMessage(t, client); msg.Type != "incoming-call" {
		t.Fatalf("message type = %q, want incoming-call", msg.Type)
	}

	hub.unregister <- client
	deadline := time.After(time.Second)
	for hub.ConnectedClients() != 0 {
		select {
		case <-deadline:
			t.Fatal("client was not removed")
		case <-time.After(time.Millisecond):
		}
	}

	// The dropped client's ring timer must not fire into the dead
	// connection: no late missed write, no send on the closed channel.
	time.Sleep(400 * time.Millisecond)
	if ended := ledger.endedStatuses(); len(ended) != 0 {
		t.Fatalf("unexpected ledger writes after disconnect: %v", ended)
	}

	// Late notices to a closed client are dropped, never a panic.
	client.notify(callsession.Notice{Kind: "call_missed"})
}

func TestAnswerRetractsSiblingOffers(t *testing.T) {
	hub := NewWebSocketHub(zerolog.Nop())
	hub.Start()
	defer hub.Stop()

	tenantID := uuid.New()
	ledgerA := &recordingLedger{}
	ledgerB := &recordingLedger{}
	a := newHubClient(t, hub, tenantID, ledgerA, callsession.WithRingTimeout(250*time.Millisecond))
	b := newHubClient(t, hub, tenantID, ledgerB, callsession.WithRingTimeout(250*time.Millisecond))

	ev := event(tenantID)
	hub.PublishIncomingCall(tenantID, ev)
	for _, client := range []*WebSocketClient{a, b} {
		if msg := recvMessage(t, client); msg.Type != "incoming-call" {
			t.Fatalf("message type = %q, want incoming-call", msg.Type)
		}
	}

	if err := a.session.Answer(context.Background()); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	hub.RetractOffer(tenantID, ev.CallLogID, a)

	if got := a.session.State(); got != callsession.StateAnswered {
		t.Fatalf("answering session state = %s, want answered", got)
	}
	if got := b.session.State(); got != callsession.StateIdle {
		t.Fatalf("sibling session state = %s, want idle", got)
	}
	if msg := recvMessage(t, b); msg.Type != "call_taken" {
		t.Fatalf("sibling message type = %q, want call_taken", msg.Type)
	}

	// The sibling's ring timer is cancelled: letting the timeout window
	// lapse must not write a missed status over the answered call.
	time.Sleep(400 * time.Millisecond)
	if ended := ledgerB.endedStatuses(); len(ended) != 0 {
		t.Fatalf("sibling wrote terminal statuses %v, want none", ended)
	}
}

func TestStopClosesClients(t *testing.T) {
	hub := NewWebSocketHub(zerolog.Nop())
	hub.Start()

	client := newHubClient(t, hub, uuid.New(), nopLedger{})
	hub.Stop()

	select {
	case _, ok := <-client.send:
		if ok {
			t.Fatal("expected closed send channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed on stop")
	}
	hub.Stop() // idempotent
}
