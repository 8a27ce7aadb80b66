package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"callpop/internal/auth"
	"callpop/internal/callsession"
	"callpop/internal/correlate"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// WebSocketMessage represents a message sent through WebSocket
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	TenantID  string      `json:"tenant_id,omitempty"`
}

// WebSocketClient represents a connected WebSocket client. A client joins
// exactly one tenant room and owns the live call session for its connection.
type WebSocketClient struct {
	conn     *websocket.Conn
	tenantID uuid.UUID
	send     chan WebSocketMessage
	session  *callsession.Session
	hub      *WebSocketHub

	closeMu sync.Mutex
	closed  bool
}

// close tears the client down exactly once: further replies become no-ops,
// the send channel is closed for the writePump, and the call session releases
// its ring timer so it cannot fire into a dead connection.
func (c *WebSocketClient) close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	if c.session != nil {
		c.session.Release()
	}
}

// WebSocketHub manages all WebSocket connections. It is constructed and
// injected rather than shared process-wide, so tests can run independent
// instances with their own lifecycle.
type WebSocketHub struct {
	clients    map[*WebSocketClient]bool
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	logger     zerolog.Logger
}

// NewWebSocketHub creates a hub. Call Start before registering clients.
func NewWebSocketHub(logger zerolog.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*WebSocketClient]bool),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		done:       make(chan struct{}),
		logger:     logger.With().Str("component", "websocket").Logger(),
	}
}

// Start runs the hub's register/unregister loop.
func (hub *WebSocketHub) Start() {
	go hub.run()
}

// Stop shuts the hub down and closes every client's send channel.
func (hub *WebSocketHub) Stop() {
	hub.stopOnce.Do(func() { close(hub.done) })
}

func (hub *WebSocketHub) run() {
	for {
		select {
		case client := <-hub.register:
			hub.mu.Lock()
			hub.clients[client] = true
			hub.mu.Unlock()
			hub.logger.Info().Str("tenant_id", client.tenantID.String()).Msg("websocket client joined")

			client.reply("joined", map[string]string{"company_id": client.tenantID.String()})

		case client := <-hub.unregister:
			hub.drop(client)

		case <-hub.done:
			hub.mu.Lock()
			for client := range hub.clients {
				delete(hub.clients, client)
				client.close()
			}
			hub.mu.Unlock()
			return
		}
	}
}

// drop removes a client. Safe to call more than once per client: a client
// that already left is a no-op, so racing disconnect paths cannot close the
// send channel twice.
func (hub *WebSocketHub) drop(client *WebSocketClient) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if _, ok := hub.clients[client]; ok {
		delete(hub.clients, client)
		client.close()
		hub.logger.Info().Str("tenant_id", client.tenantID.String()).Msg("websocket client left")
	}
}

// PublishIncomingCall delivers an incoming-call event to every connection in
// the event's tenant room. Each client's session decides whether the call is
// accepted or the client is busy; busy clients get a call_blocked notice
// instead of the event. Clients with full send buffers are pruned.
//
// The client set is locked for the duration of the publish, so a connection
// never sees a partially registered or just-unregistered delivery.
func (hub *WebSocketHub) PublishIncomingCall(tenantID uuid.UUID, event correlate.IncomingCallEvent) {
	now := time.Now()
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for client := range hub.clients {
		if client.tenantID != tenantID {
			continue
		}

		msg := WebSocketMessage{
			Type:      "incoming-call",
			Data:      event,
			Timestamp: now,
			TenantID:  tenantID.String(),
		}
		if client.session != nil && client.session.Offer(event) == callsession.OfferRejectedBusy {
			msg = WebSocketMessage{
				Type: "call_blocked",
				Data: map[string]interface{}{
					"callLogId":    event.CallLogID,
					"callerNumber": event.CallerNumber,
					"reason":       "another call is already active",
				},
				Timestamp: now,
				TenantID:  tenantID.String(),
			}
		}

		select {
		case client.send <- msg:
		default:
			delete(hub.clients, client)
			client.close()
			if client.conn != nil {
				client.conn.Close()
			}
			hub.logger.Warn().Str("tenant_id", tenantID.String()).Msg("pruned unresponsive websocket client")
		}
	}
}

// RetractOffer withdraws a ringing call from every other connection of the
// tenant once one agent has answered it. Sibling sessions return to idle and
// their ring timers are cancelled, so a call in progress is never overwritten
// by a late missed transition from an agent who let it ring.
func (hub *WebSocketHub) RetractOffer(tenantID, callLogID uuid.UUID, answeredBy *WebSocketClient) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for client := range hub.clients {
		if client == answeredBy || client.tenantID != tenantID || client.session == nil {
			continue
		}
		client.session.Retract(callLogID)
	}
}

// ConnectedClients returns the number of registered connections.
func (hub *WebSocketHub) ConnectedClients() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients)
}

// WebSocketHandler upgrades connections and speaks the agent protocol: a
// join message first, then incoming-call events out and call actions in.
type WebSocketHandler struct {
	hub         *WebSocketHub
	authService *auth.Service
	ledger      callsession.Ledger
	logger      zerolog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler around a hub.
func NewWebSocketHandler(hub *WebSocketHub, authService *auth.Service, ledger callsession.Ledger, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		authService: authService,
		ledger:      ledger,
		logger:      logger.With().Str("component", "websocket").Logger(),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Browser agents connect from the SPA origin; tighten in production.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// HandleWebSocket handles WebSocket connection upgrades. The client
// authenticates with a JWT (query parameter, since browsers cannot set
// headers on websocket dials) and must then send a join message naming its
// company before it receives any events.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	var claimTenant *uuid.UUID

	if tid, ok := c.Get("tenant_id").(string); ok {
		if parsed, err := uuid.Parse(tid); err == nil {
			claimTenant = &parsed
		}
	} else {
		token := c.QueryParam("token")
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization token")
		}
		claims, err := h.authService.ValidateToken(token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token: "+err.Error())
		}
		if claims.TenantID != nil {
			claimTenant = claims.TenantID
		}
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return err
	}

	client := &WebSocketClient{
		conn: conn,
		send: make(chan WebSocketMessage, 256),
		hub:  h.hub,
	}

	go client.writePump(h.logger)
	go h.readPump(client, claimTenant)

	return nil
}

type joinData struct {
	CompanyID string `json:"company_id"`
}

type actionData struct {
	AddressID string `json:"address_id"`
}

// readPump drives the per-connection protocol.
func (h *WebSocketHandler) readPump(client *WebSocketClient, claimTenant *uuid.UUID) {
	joined := false
	defer func() {
		if joined {
			client.hub.unregister <- client
		}
		client.conn.Close()
	}()

	client.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			client.reply("error", map[string]string{"message": "invalid message"})
			continue
		}

		if !joined {
			if msg.Type != "join" {
				client.reply("error", map[string]string{"message": "join a company room first"})
				continue
			}
			tenantID, err := h.parseJoin(msg, claimTenant)
			if err != nil {
				client.reply("error", map[string]string{"message": err.Error()})
				continue
			}
			client.tenantID = tenantID
			client.session = callsession.NewSession(tenantID, h.ledger, client.notify, h.logger)
			client.hub.register <- client
			joined = true
			continue
		}

		h.handleAction(client, msg)
	}
}

func (h *WebSocketHandler) parseJoin(msg WebSocketMessage, claimTenant *uuid.UUID) (uuid.UUID, error) {
	buf, _ := json.Marshal(msg.Data)
	var data joinData
	if err := json.Unmarshal(buf, &data); err != nil || data.CompanyID == "" {
		return uuid.Nil, errJoinCompanyRequired
	}
	tenantID, err := uuid.Parse(data.CompanyID)
	if err != nil {
		return uuid.Nil, errJoinCompanyRequired
	}
	// A tenant-scoped token only ever joins its own room.
	if claimTenant != nil && *claimTenant != tenantID {
		return uuid.Nil, errJoinForbidden
	}
	return tenantID, nil
}

var (
	errJoinCompanyRequired = &joinError{"join requires a valid company_id"}
	errJoinForbidden       = &joinError{"token does not grant access to this company"}
)

type joinError struct{ msg string }

func (e *joinError) Error() string { return e.msg }

// handleAction applies an agent action to the connection's call session and
// reports the resulting state. Invalid transitions and persistence drift are
// reported as non-blocking messages, never by dropping the connection.
func (h *WebSocketHandler) handleAction(client *WebSocketClient, msg WebSocketMessage) {
	ctx := context.Background()

	switch msg.Type {
	case "ping":
		client.reply("pong", map[string]string{"status": "ok"})
		return
	case "answer":
		err := client.session.Answer(ctx)
		if !errors.Is(err, callsession.ErrInvalidTransition) {
			// The call now belongs to this agent; withdraw it everywhere else.
			if call := client.session.Current(); call != nil {
				h.hub.RetractOffer(client.tenantID, call.CallLogID, client)
			}
		}
		h.applyTransition(client, err)
	case "decline":
		h.applyTransition(client, client.session.Decline(ctx))
	case "end_call":
		h.applyTransition(client, client.session.End(ctx))
	case "dismiss":
		h.applyTransition(client, client.session.Dismiss())
	case "select_address":
		buf, _ := json.Marshal(msg.Data)
		var data actionData
		if err := json.Unmarshal(buf, &data); err != nil {
			client.reply("error", map[string]string{"message": "invalid message"})
			return
		}
		addressID, err := uuid.Parse(data.AddressID)
		if err != nil {
			client.reply("error", map[string]string{"message": "select_address requires a valid address_id"})
			return
		}
		h.applyTransition(client, client.session.SelectAddress(ctx, addressID))
	default:
		client.reply("error", map[string]string{"message": "unknown message type: " + msg.Type})
		return
	}
}

func (h *WebSocketHandler) applyTransition(client *WebSocketClient, err error) {
	switch {
	case err == nil:
	case errors.Is(err, callsession.ErrInvalidTransition):
		client.reply("error", map[string]string{"message": "action not valid in current call state"})
		return
	default:
		// Persistence drift: local state already moved on; warn the agent.
		client.reply("warning", map[string]string{"message": "call state saved locally but could not be persisted"})
	}

	state := map[string]interface{}{"state": string(client.session.State())}
	if call := client.session.Current(); call != nil {
		state["callLogId"] = call.CallLogID
		state["durationSeconds"] = client.session.ElapsedSeconds()
	}
	client.reply("call_state", state)
}

// notify forwards asynchronous session notices (ring timeout, persistence
// warnings) to the browser.
func (c *WebSocketClient) notify(n callsession.Notice) {
	c.reply(n.Kind, n)
}

// reply queues a message for the writePump. Messages to a full buffer or a
// closed client are dropped; session notices may race a disconnect, so this
// must never send on the closed channel.
func (c *WebSocketClient) reply(msgType string, data interface{}) {
	msg := WebSocketMessage{Type: msgType, Data: data, Timestamp: time.Now()}
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// writePump handles writing messages to the WebSocket
func (c *WebSocketClient) writePump(logger zerolog.Logger) {
	ticker := time.NewTicker(20 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				logger.Warn().Err(err).Msg("websocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
